package domain

import (
	"time"
)

// Setting is a persisted key-value pair (access token, instrument cache).
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting keys.
const (
	SettingAccessToken       = "access_token"
	SettingInstrumentsPrefix = "instruments:"
)
