package models

import (
	"fmt"
	"time"
)

// Mailbox holds the connection settings of a polled IMAP mailbox.
type Mailbox struct {
	Name               string    `gorm:"column:name;type:varchar(100);primaryKey" json:"name"`
	Host               string    `gorm:"column:host;type:varchar(255);not null" json:"host"`
	Port               int       `gorm:"column:port;not null" json:"port"`
	TLS                bool      `gorm:"column:tls;not null" json:"tls"`
	StartTLS           bool      `gorm:"column:starttls;not null;default:false" json:"starttls"`
	InsecureSkipVerify bool      `gorm:"column:insecure_skip_verify;not null;default:false" json:"insecureSkipVerify"`
	Username           string    `gorm:"column:username;type:varchar(255);not null" json:"username"`
	Password           string    `gorm:"column:password;type:varchar(255);not null" json:"-"`
	Folder             string    `gorm:"column:folder;type:varchar(255);not null;default:INBOX" json:"folder"`
	Enabled            bool      `gorm:"column:enabled;not null" json:"enabled"`
	CreatedAt          time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Mailbox) TableName() string {
	return "mailboxes"
}

func (m *Mailbox) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

func (m *Mailbox) FolderOrDefault() string {
	if m.Folder == "" {
		return "INBOX"
	}
	return m.Folder
}
