package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is the single table backing every collection in the Postgres store.
type Document struct {
	Collection string         `gorm:"primaryKey;size:64"`
	Key        string         `gorm:"primaryKey;size:191"`
	Version    int64          `gorm:"not null;default:1"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}
