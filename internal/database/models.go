package database

import "time"

// Credential holds one tenant's opaque protocol credential blob. The blob is
// a Fernet token of the raw credential material; deleting the row is the only
// mechanism for forcing a tenant through a fresh pairing handshake.
type Credential struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  string    `gorm:"uniqueIndex;not null;size:128" json:"tenant_id"`
	Blob      string    `gorm:"type:text" json:"-"` // Fernet-encrypted
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OutboundMessage is the audit record for a message accepted by the send
// endpoint. Inbound messages are never recorded.
type OutboundMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"index;not null;size:128" json:"tenant_id"`
	Recipient string    `gorm:"not null" json:"recipient"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
