package credential

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is a validation failure on one form field
type FieldError struct {
	Field   string // json name of the field
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// Errors is the list of field failures of one validation
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, " / ")
}

// Field returns the message for a field, or "" when it passed
func (e Errors) Field(name string) string {
	for _, fe := range e {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

// IsValidation reports whether err carries field errors
func IsValidation(err error) bool {
	var errs Errors
	return errors.As(err, &errs)
}

var labels = map[string]string{
	"platform":        "プラットフォーム",
	"account_name":    "アカウント名",
	"jobbox_id":       "ログインID",
	"jobbox_password": "パスワード",
	"email":           "メールアドレス",
	"appPass":         "アプリパスワード",
	"provider":        "プロバイダ",
	"baseUrl":         "ベースURL",
	"apiId":           "API ID",
	"apiPass":         "APIパスワード",
	"auth":            "認証方式",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a credential record against its struct tags
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return errs
}

func message(fe validator.FieldError) string {
	label, ok := labels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + "を入力してください"
	case "email":
		return label + "の形式が正しくありません"
	case "url":
		return label + "はURLで入力してください"
	case "len":
		return label + "は" + fe.Param() + "文字で入力してください"
	case "max":
		return label + "は" + fe.Param() + "文字以内で入力してください"
	case "oneof":
		return label + "の値が正しくありません"
	default:
		return label + "が正しくありません"
	}
}
