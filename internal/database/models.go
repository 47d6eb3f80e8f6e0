package database

import "time"

// Profile is a stored SSH host profile. Password and PrivateKey hold
// fernet tokens, never plaintext.
type Profile struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Name            string     `gorm:"uniqueIndex;not null" json:"name"`
	Host            string     `gorm:"not null" json:"host"`
	Port            int        `gorm:"not null;default:22" json:"port"`
	Username        string     `gorm:"not null" json:"username"`
	Password        string     `json:"-"`
	PrivateKey      string     `gorm:"type:text" json:"-"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
