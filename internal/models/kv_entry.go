package models

import "time"

// KVEntry is one row of the SQL-backed key-value store. Keys carry their
// own user prefix, so the table has no user column.
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
