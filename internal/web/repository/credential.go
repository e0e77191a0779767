package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/foxzi/outreach/internal/web/docstore"
	"github.com/foxzi/outreach/internal/web/models"
)

const (
	collectionRPAAccounts  = "jobbox_accounts"
	collectionMailSettings = "mail_settings"
	collectionAPISettings  = "api_settings"

	// singleton document id for per-user settings
	settingsDoc = "settings"
)

type CredentialRepository struct {
	store *docstore.Store
}

func NewCredentialRepository(store *docstore.Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

// ListRPAAccounts returns the user's RPA accounts, optionally only one platform.
// Accounts stored before platforms existed are treated as jobbox.
func (r *CredentialRepository) ListRPAAccounts(ctx context.Context, uid, platform string) ([]models.RPAAccount, error) {
	docs, err := r.store.Collection(uid, collectionRPAAccounts).List(ctx, docstore.Query{})
	if err != nil {
		return nil, err
	}

	accounts := []models.RPAAccount{}
	for _, doc := range docs {
		var a models.RPAAccount
		if err := doc.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode account %s: %w", doc.ID, err)
		}
		a.ID = doc.ID
		if a.Platform == "" {
			a.Platform = models.PlatformJobbox
		}
		if platform != "" && a.Platform != platform {
			continue
		}
		accounts = append(accounts, a)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].AccountName < accounts[j].AccountName
	})
	return accounts, nil
}

// GetRPAAccount returns one account or docstore.ErrNotFound
func (r *CredentialRepository) GetRPAAccount(ctx context.Context, uid, id string) (*models.RPAAccount, error) {
	doc, err := r.store.Collection(uid, collectionRPAAccounts).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var a models.RPAAccount
	if err := doc.Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", id, err)
	}
	a.ID = doc.ID
	if a.Platform == "" {
		a.Platform = models.PlatformJobbox
	}
	return &a, nil
}

// SaveRPAAccount creates the account when it has no id, else overwrites it
func (r *CredentialRepository) SaveRPAAccount(ctx context.Context, uid string, a *models.RPAAccount) error {
	coll := r.store.Collection(uid, collectionRPAAccounts)
	if a.ID == "" {
		id, err := coll.Add(ctx, a)
		if err != nil {
			return err
		}
		a.ID = id
		return nil
	}
	return coll.Set(ctx, a.ID, a)
}

func (r *CredentialRepository) DeleteRPAAccount(ctx context.Context, uid, id string) error {
	return r.store.Collection(uid, collectionRPAAccounts).Delete(ctx, id)
}

// GetMailSettings returns nil when nothing has been saved
func (r *CredentialRepository) GetMailSettings(ctx context.Context, uid string) (*models.MailSettings, error) {
	var s models.MailSettings
	found, err := r.getSettings(ctx, uid, collectionMailSettings, &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (r *CredentialRepository) SaveMailSettings(ctx context.Context, uid string, s *models.MailSettings) error {
	return r.store.Collection(uid, collectionMailSettings).Set(ctx, settingsDoc, s)
}

func (r *CredentialRepository) DeleteMailSettings(ctx context.Context, uid string) error {
	return r.store.Collection(uid, collectionMailSettings).Delete(ctx, settingsDoc)
}

// GetAPISettings returns nil when nothing has been saved
func (r *CredentialRepository) GetAPISettings(ctx context.Context, uid string) (*models.APISettings, error) {
	var s models.APISettings
	found, err := r.getSettings(ctx, uid, collectionAPISettings, &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (r *CredentialRepository) SaveAPISettings(ctx context.Context, uid string, s *models.APISettings) error {
	return r.store.Collection(uid, collectionAPISettings).Set(ctx, settingsDoc, s)
}

func (r *CredentialRepository) DeleteAPISettings(ctx context.Context, uid string) error {
	return r.store.Collection(uid, collectionAPISettings).Delete(ctx, settingsDoc)
}

func (r *CredentialRepository) getSettings(ctx context.Context, uid, collection string, v any) (bool, error) {
	doc, err := r.store.Collection(uid, collection).Get(ctx, settingsDoc)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := doc.Decode(v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", collection, err)
	}
	return true, nil
}
