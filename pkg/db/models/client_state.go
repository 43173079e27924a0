package models

import "time"

// ClientState is one persisted console state entry (session or cart snapshot).
type ClientState struct {
	StateKey  string     `gorm:"column:state_key;primaryKey"`
	Value     string     `gorm:"column:value;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index:idx_client_state_expires_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (ClientState) TableName() string {
	return "client_state"
}

// Live reports whether the entry has not yet expired at now.
func (c ClientState) Live(now time.Time) bool {
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
