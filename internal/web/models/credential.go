package models

// Job-board platforms an RPA account can belong to
const (
	PlatformJobbox = "jobbox"
	PlatformEngage = "engage"
)

// RPAAccount is a login pair for a third-party job board.
// Stored at accounts/{uid}/jobbox_accounts/{id}.
type RPAAccount struct {
	ID          string `json:"-"`
	Platform    string `json:"platform" validate:"required,oneof=jobbox engage"`
	AccountName string `json:"account_name" validate:"required,max=100"`
	LoginID     string `json:"jobbox_id" validate:"required,max=255"`
	Password    string `json:"jobbox_password" validate:"required,max=255"`
}

// MailSettings is the relay login, stored at accounts/{uid}/mail_settings/settings
type MailSettings struct {
	Email     string `json:"email" validate:"required,email"`
	AppPass   string `json:"appPass" validate:"required,len=16"`
	CreatedAt int64  `json:"createdAt,omitempty"` // epoch ms
}

// Outbound SMS API auth styles
const (
	APIAuthParams = "params"
	APIAuthBasic  = "basic"
	APIAuthBearer = "bearer"
)

// DefaultAPIProvider is the only supported outbound SMS provider
const DefaultAPIProvider = "sms_publisher"

// APISettings is the outbound SMS API login, stored at
// accounts/{uid}/api_settings/settings
type APISettings struct {
	Provider  string `json:"provider" validate:"required"`
	BaseURL   string `json:"baseUrl" validate:"required,url"`
	APIID     string `json:"apiId" validate:"required"`
	APIPass   string `json:"apiPass" validate:"required"`
	Auth      string `json:"auth,omitempty" validate:"omitempty,oneof=params basic bearer"`
	UpdatedAt int64  `json:"updatedAt,omitempty"` // epoch ms
}
