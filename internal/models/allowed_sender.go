package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/utils"
)

// AllowedSender is an allow-list entry matching either a full address or a domain.
type AllowedSender struct {
	ID        string                 `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Type      enum.AllowedSenderType `gorm:"column:type;type:varchar(10);not null;index:idx_allowed_senders_lookup,priority:1" json:"type"`
	Value     string                 `gorm:"column:value;type:varchar(255);not null;index:idx_allowed_senders_lookup,priority:2" json:"value"`
	UserID    *string                `gorm:"column:user_id;type:varchar(50)" json:"userId,omitempty"`
	Active    bool                   `gorm:"column:active;not null" json:"active"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time              `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (AllowedSender) TableName() string {
	return "allowed_senders"
}

func (m *AllowedSender) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("sndr", 16)
	}
	return nil
}
