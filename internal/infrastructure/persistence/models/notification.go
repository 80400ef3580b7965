package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/notification"
)

// NotificationModel is the persistence model for a user notification.
type NotificationModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	RecipientID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind        string          `gorm:"type:varchar(40);not null"`
	Title       string          `gorm:"type:varchar(200);not null"`
	Message     string          `gorm:"type:text;not null"`
	PropertyID  *uuid.UUID      `gorm:"type:uuid"`
	InvoiceID   *uuid.UUID      `gorm:"type:uuid"`
	Data        JSONMap[string] `gorm:"type:jsonb;not null;default:'{}'"`
	IsRead      bool            `gorm:"not null;default:false"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationModelFromDomain creates a new persistence model from a domain Notification
func NotificationModelFromDomain(n *notification.Notification) *NotificationModel {
	return &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Kind:        string(n.Kind),
		Title:       n.Title,
		Message:     n.Message,
		PropertyID:  n.PropertyID,
		InvoiceID:   n.InvoiceID,
		Data:        JSONMap[string](n.Data),
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

// ToDomain converts the persistence model to a domain Notification
func (m *NotificationModel) ToDomain() *notification.Notification {
	return &notification.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Kind:        notification.Kind(m.Kind),
		Title:       m.Title,
		Message:     m.Message,
		PropertyID:  m.PropertyID,
		InvoiceID:   m.InvoiceID,
		Data:        map[string]string(m.Data),
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
	}
}
