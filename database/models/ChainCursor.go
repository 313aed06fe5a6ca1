package models

import "time"

// ChainCursor is the last event sequence processed for a chain.
type ChainCursor struct {
	Chain     Chain     `gorm:"type:chain;primaryKey"`
	Sequence  int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ChainCursor) TableName() string {
	return "chain_cursors"
}
