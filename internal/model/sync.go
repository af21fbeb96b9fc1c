package model

import "time"

type SyncStatus struct {
	Connected bool       `json:"connected"`
	State     string     `json:"state"`
	LastSync  *time.Time `json:"last_sync"`
	SyncCount int64      `json:"sync_count"`
}
