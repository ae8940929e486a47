package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rfsilva/zapmux/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&Credential{}, &Setting{}, &OutboundMessage{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// Outbound message helpers

func RecordOutboundMessage(msg *OutboundMessage) error {
	return DB.Create(msg).Error
}

func ListOutboundMessages(tenantID string, limit int) ([]OutboundMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []OutboundMessage
	if err := DB.Where("tenant_id = ?", tenantID).Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// PruneOutboundMessages deletes audit records older than the retention window.
// Called from the scheduled maintenance job.
func PruneOutboundMessages(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := DB.Where("created_at < ?", cutoff).Delete(&OutboundMessage{})
	return res.RowsAffected, res.Error
}
