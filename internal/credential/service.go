// Package credential manages the per-user login records the RPA engine
// reads: job-board accounts, the mail relay and the outbound SMS API.
package credential

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

// Repository stores credential records under a user namespace
type Repository interface {
	ListRPAAccounts(ctx context.Context, uid, platform string) ([]models.RPAAccount, error)
	GetRPAAccount(ctx context.Context, uid, id string) (*models.RPAAccount, error)
	SaveRPAAccount(ctx context.Context, uid string, a *models.RPAAccount) error
	DeleteRPAAccount(ctx context.Context, uid, id string) error

	GetMailSettings(ctx context.Context, uid string) (*models.MailSettings, error)
	SaveMailSettings(ctx context.Context, uid string, s *models.MailSettings) error
	DeleteMailSettings(ctx context.Context, uid string) error

	GetAPISettings(ctx context.Context, uid string) (*models.APISettings, error)
	SaveAPISettings(ctx context.Context, uid string, s *models.APISettings) error
	DeleteAPISettings(ctx context.Context, uid string) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) authorize(ctx context.Context, src identity.Source) (*identity.Principal, error) {
	return docstore.Authorize(ctx, src, s.now())
}

// RPAAccounts lists the caller's job-board accounts; platform "" lists all
func (s *Service) RPAAccounts(ctx context.Context, src identity.Source, platform string) ([]models.RPAAccount, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRPAAccounts(ctx, p.UID, platform)
}

func (s *Service) RPAAccount(ctx context.Context, src identity.Source, id string) (*models.RPAAccount, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRPAAccount(ctx, p.UID, id)
}

// SaveRPAAccount validates and stores an account. An account with an id
// is overwritten in full.
func (s *Service) SaveRPAAccount(ctx context.Context, src identity.Source, a *models.RPAAccount) error {
	a.AccountName = strings.TrimSpace(a.AccountName)
	a.LoginID = strings.TrimSpace(a.LoginID)
	if a.Platform == "" {
		a.Platform = models.PlatformJobbox
	}
	if err := Validate(a); err != nil {
		return err
	}

	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	if err := s.repo.SaveRPAAccount(ctx, p.UID, a); err != nil {
		s.logger.Error("failed to save rpa account", "uid", p.UID, "error", err)
		return err
	}
	s.logger.Info("rpa account saved", "uid", p.UID, "id", a.ID, "platform", a.Platform)
	return nil
}

func (s *Service) DeleteRPAAccount(ctx context.Context, src identity.Source, id string) error {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRPAAccount(ctx, p.UID, id); err != nil {
		return err
	}
	s.logger.Info("rpa account deleted", "uid", p.UID, "id", id)
	return nil
}

// MailSettings returns the saved relay login or nil
func (s *Service) MailSettings(ctx context.Context, src identity.Source) (*models.MailSettings, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.repo.GetMailSettings(ctx, p.UID)
}

// SaveMailSettings overwrites the relay login. createdAt is stamped on
// every save.
func (s *Service) SaveMailSettings(ctx context.Context, src identity.Source, m *models.MailSettings) error {
	m.Email = strings.TrimSpace(m.Email)
	m.AppPass = strings.ReplaceAll(m.AppPass, " ", "")
	if err := Validate(m); err != nil {
		return err
	}

	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	m.CreatedAt = s.now().UnixMilli()
	if err := s.repo.SaveMailSettings(ctx, p.UID, m); err != nil {
		s.logger.Error("failed to save mail settings", "uid", p.UID, "error", err)
		return err
	}
	s.logger.Info("mail settings saved", "uid", p.UID)
	return nil
}

func (s *Service) DeleteMailSettings(ctx context.Context, src identity.Source) error {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	return s.repo.DeleteMailSettings(ctx, p.UID)
}

// APISettings returns the saved outbound API login or nil
func (s *Service) APISettings(ctx context.Context, src identity.Source) (*models.APISettings, error) {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAPISettings(ctx, p.UID)
}

func (s *Service) SaveAPISettings(ctx context.Context, src identity.Source, a *models.APISettings) error {
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	a.APIID = strings.TrimSpace(a.APIID)
	if a.Provider == "" {
		a.Provider = models.DefaultAPIProvider
	}
	if err := Validate(a); err != nil {
		return err
	}

	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	a.UpdatedAt = s.now().UnixMilli()
	if err := s.repo.SaveAPISettings(ctx, p.UID, a); err != nil {
		s.logger.Error("failed to save api settings", "uid", p.UID, "error", err)
		return err
	}
	s.logger.Info("api settings saved", "uid", p.UID, "provider", a.Provider)
	return nil
}

func (s *Service) DeleteAPISettings(ctx context.Context, src identity.Source) error {
	p, err := s.authorize(ctx, src)
	if err != nil {
		return err
	}
	return s.repo.DeleteAPISettings(ctx, p.UID)
}
