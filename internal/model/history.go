package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

type History struct {
	gorm.Model
	Status    SyncStatus `gorm:"not null;index"`
	EventID   string     `gorm:"not null"`
	EventKind string     `gorm:"not null"`
	Action    string     `gorm:"not null"`
	SrcPath   string     `gorm:"not null"`
	DstPath   string
	Synthetic bool
	ErrMsg    string
	SyncedAt  time.Time `gorm:"not null;index"`
}
