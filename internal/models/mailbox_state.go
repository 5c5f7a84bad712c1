package models

import (
	"time"
)

// MailboxState is the per-mailbox watermark. Version is bumped on every write
// and used for optimistic compare-and-set.
type MailboxState struct {
	Mailbox     string    `gorm:"column:mailbox;type:varchar(100);primaryKey" json:"mailbox"`
	LastSeenUID uint32    `gorm:"column:last_seen_uid;not null;default:0" json:"lastSeenUid"`
	UIDValidity uint32    `gorm:"column:uid_validity;not null;default:0" json:"uidValidity"`
	Version     int64     `gorm:"column:version;not null;default:0" json:"version"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (MailboxState) TableName() string {
	return "mailbox_states"
}

type MailboxLease struct {
	Mailbox    string    `gorm:"column:mailbox;type:varchar(100);primaryKey" json:"mailbox"`
	Holder     string    `gorm:"column:holder;type:varchar(255);not null" json:"holder"`
	AcquiredAt time.Time `gorm:"column:acquired_at;type:timestamp;not null" json:"acquiredAt"`
	ExpiresAt  time.Time `gorm:"column:expires_at;type:timestamp;not null;index" json:"expiresAt"`
}

func (MailboxLease) TableName() string {
	return "mailbox_leases"
}
