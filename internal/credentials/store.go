// Package credentials persists opaque per-tenant credential blobs. The blob
// content belongs to the wire protocol layer and is never inspected here.
package credentials

import (
	"errors"
	"fmt"

	"github.com/rfsilva/zapmux/internal/crypto"
	"github.com/rfsilva/zapmux/internal/database"
	"gorm.io/gorm"
)

// Store is the persistence boundary for credential blobs. Load returns
// (nil, nil) for an unknown tenant; an absent blob means the tenant must
// pair from scratch, which is not an error.
type Store interface {
	Load(tenantID string) ([]byte, error)
	Save(tenantID string, blob []byte) error
	Delete(tenantID string) error
	Tenants() ([]string, error)
}

// DBStore keeps blobs in the credentials table, encrypted at rest.
type DBStore struct{}

func NewDBStore() *DBStore {
	return &DBStore{}
}

func (s *DBStore) Load(tenantID string) ([]byte, error) {
	var cred database.Credential
	if err := database.DB.Where("tenant_id = ?", tenantID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credentials for %s: %w", tenantID, err)
	}
	blob, err := crypto.Decrypt(cred.Blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for %s: %w", tenantID, err)
	}
	return blob, nil
}

func (s *DBStore) Save(tenantID string, blob []byte) error {
	enc, err := crypto.Encrypt(blob)
	if err != nil {
		return fmt.Errorf("encrypt credentials for %s: %w", tenantID, err)
	}
	err = database.DB.Where("tenant_id = ?", tenantID).
		Assign(database.Credential{Blob: enc}).
		FirstOrCreate(&database.Credential{TenantID: tenantID}).Error
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", tenantID, err)
	}
	return nil
}

func (s *DBStore) Delete(tenantID string) error {
	if err := database.DB.Where("tenant_id = ?", tenantID).Delete(&database.Credential{}).Error; err != nil {
		return fmt.Errorf("delete credentials for %s: %w", tenantID, err)
	}
	return nil
}

// Tenants lists every tenant with stored credentials. Used by the boot and
// scheduled resync jobs to re-establish sessions after a restart.
func (s *DBStore) Tenants() ([]string, error) {
	var creds []database.Credential
	if err := database.DB.Order("tenant_id").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list credential tenants: %w", err)
	}
	ids := make([]string, len(creds))
	for i, c := range creds {
		ids[i] = c.TenantID
	}
	return ids, nil
}
