package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ratio_watch/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists settings that must survive a restart: the last access token
// and the instrument set resolved for a trading day.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Setting Operations
// ======================================================================================

// SaveSetting creates or updates a setting
func (s *Storage) SaveSetting(key, value string) error {
	return s.db.Save(&domain.Setting{Key: key, Value: value, UpdatedAt: time.Now()}).Error
}

// GetSetting retrieves a setting by key. A missing key is not an error.
func (s *Storage) GetSetting(key string) (string, bool, error) {
	var setting domain.Setting
	err := s.db.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

// DeleteSetting removes a setting
func (s *Storage) DeleteSetting(key string) error {
	return s.db.Where("key = ?", key).Delete(&domain.Setting{}).Error
}

// ======================================================================================
// Token / Instrument Operations
// ======================================================================================

// SaveAccessToken stores the most recent feed credential.
func (s *Storage) SaveAccessToken(token string) error {
	return s.SaveSetting(domain.SettingAccessToken, token)
}

// AccessToken returns the stored feed credential, if any.
func (s *Storage) AccessToken() (string, bool, error) {
	return s.GetSetting(domain.SettingAccessToken)
}

// SaveInstruments caches the instrument set resolved for day.
func (s *Storage) SaveInstruments(day time.Time, set domain.InstrumentSet) error {
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return s.SaveSetting(instrumentsKey(day), string(b))
}

// LoadInstruments returns the instrument set cached for day, if any.
func (s *Storage) LoadInstruments(day time.Time) (domain.InstrumentSet, bool, error) {
	var set domain.InstrumentSet

	raw, ok, err := s.GetSetting(instrumentsKey(day))
	if err != nil || !ok {
		return set, false, err
	}
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		// 손상된 캐시는 지우고 다시 받습니다.
		if derr := s.DeleteSetting(instrumentsKey(day)); derr != nil {
			err = errors.Join(err, derr)
		}
		return domain.InstrumentSet{}, false, fmt.Errorf("corrupt instrument cache: %w", err)
	}
	return set, true, nil
}

func instrumentsKey(day time.Time) string {
	return domain.SettingInstrumentsPrefix + day.Format("2006-01-02")
}
