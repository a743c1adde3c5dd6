package models

import (
	"encoding/json"
	"time"
)

// NotificationType is the closed set of notification categories
type NotificationType string

const (
	NotificationBonus       NotificationType = "bonus"
	NotificationWin         NotificationType = "win"
	NotificationSystem      NotificationType = "system"
	NotificationPromotion   NotificationType = "promotion"
	NotificationAchievement NotificationType = "achievement"
	NotificationFinancial   NotificationType = "financial"
	NotificationAccount     NotificationType = "account"
	NotificationInfo        NotificationType = "info"
	NotificationSuccess     NotificationType = "success"
	NotificationWarning     NotificationType = "warning"
	NotificationError       NotificationType = "error"
)

// Notification is the normalized local representation of a notification
type Notification struct {
	ID        int64            `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	Link      string           `json:"link,omitempty"`
	Icon      string           `json:"icon,omitempty"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
}

// NotificationWire is the raw notification shape from REST and push
type NotificationWire struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	ReadAt    *time.Time      `json:"read_at"`
	Link      string          `json:"link"`
	Metadata  json.RawMessage `json:"metadata"`
}
