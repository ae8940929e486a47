package database

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	var err error
	DB, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := DB.AutoMigrate(&Credential{}, &Setting{}, &OutboundMessage{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
}

func TestSettings_SetGetDelete(t *testing.T) {
	setupTestDB(t)

	if err := SetSetting("api_token_hash", "abc"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	got, err := GetSetting("api_token_hash")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "abc" {
		t.Errorf("GetSetting = %q, want %q", got, "abc")
	}

	// Overwrite
	if err := SetSetting("api_token_hash", "def"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	got, _ = GetSetting("api_token_hash")
	if got != "def" {
		t.Errorf("GetSetting after overwrite = %q, want %q", got, "def")
	}

	if err := DeleteSetting("api_token_hash"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := GetSetting("api_token_hash"); err == nil {
		t.Error("expected error reading deleted setting")
	}
}

func TestOutboundMessages_RecordAndList(t *testing.T) {
	setupTestDB(t)

	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &OutboundMessage{
			ID:        id,
			TenantID:  "alice",
			Recipient: "555123",
			Body:      "hello",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := RecordOutboundMessage(msg); err != nil {
			t.Fatalf("RecordOutboundMessage: %v", err)
		}
	}
	RecordOutboundMessage(&OutboundMessage{ID: "other", TenantID: "bob", Recipient: "x"})

	msgs, err := ListOutboundMessages("alice", 2)
	if err != nil {
		t.Fatalf("ListOutboundMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Newest first
	if msgs[0].ID != "m3" {
		t.Errorf("expected newest message first, got %q", msgs[0].ID)
	}
}

func TestPruneOutboundMessages(t *testing.T) {
	setupTestDB(t)

	old := &OutboundMessage{ID: "old", TenantID: "alice", Recipient: "x", CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := &OutboundMessage{ID: "recent", TenantID: "alice", Recipient: "x", CreatedAt: time.Now()}
	DB.Create(old)
	DB.Create(recent)

	n, err := PruneOutboundMessages(24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneOutboundMessages: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned row, got %d", n)
	}

	msgs, _ := ListOutboundMessages("alice", 10)
	if len(msgs) != 1 || msgs[0].ID != "recent" {
		t.Errorf("expected only recent message to remain, got %+v", msgs)
	}
}
