package model

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryUrgentDelivery Category = "urgent_delivery"
	CategoryOrderUpdate    Category = "order_update"
	CategoryWeatherAlert   Category = "weather_alert"
	CategorySystem         Category = "system"
)

// Categories 所有通知类别
var Categories = []Category{
	CategoryUrgentDelivery,
	CategoryOrderUpdate,
	CategoryWeatherAlert,
	CategorySystem,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Record 通知记录，创建后只允许 IsRead 由 false 变为 true
type Record struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Category  Category       `json:"category"`
	Tag       string         `json:"tag,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	IsRead    bool           `json:"is_read"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notification is a domain event headed for the dispatcher.
type Notification struct {
	// ID is optional; a random id is assigned when zero.
	ID                 uuid.UUID
	Category           Category
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
	Data               map[string]any
}
