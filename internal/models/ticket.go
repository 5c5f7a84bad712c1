package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/utils"
)

type Ticket struct {
	ID            string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Code          string            `gorm:"column:code;type:varchar(50);uniqueIndex;not null" json:"code"`
	Title         string            `gorm:"column:title;type:varchar(1000);not null" json:"title"`
	Description   string            `gorm:"column:description;type:text" json:"description"`
	RequesterID   string            `gorm:"column:requester_id;type:varchar(50);index" json:"requesterId"`
	Status        enum.TicketStatus `gorm:"column:status;type:varchar(20);not null;default:open" json:"status"`
	SourceMailbox string            `gorm:"column:source_mailbox;type:varchar(100);index" json:"sourceMailbox"`
	CreatedAt     time.Time         `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;type:timestamp;default:current_timestamp;index" json:"updatedAt"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tckt", 16)
	}
	if t.Status == "" {
		t.Status = enum.TicketOpen
	}
	return nil
}

type TicketComment struct {
	ID        string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketID  string                `gorm:"column:ticket_id;type:varchar(50);index;not null" json:"ticketId"`
	AuthorID  string                `gorm:"column:author_id;type:varchar(50);index" json:"authorId"`
	Body      string                `gorm:"column:body;type:text" json:"body"`
	BodyHTML  string                `gorm:"column:body_html;type:text" json:"bodyHtml"`
	Direction enum.MessageDirection `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	CreatedAt time.Time             `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TicketComment) TableName() string {
	return "ticket_comments"
}

func (c *TicketComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cmnt", 16)
	}
	return nil
}

// Requester is the user a ticket is opened on behalf of.
type Requester struct {
	ID          string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email       string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string    `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (Requester) TableName() string {
	return "requesters"
}

func (r *Requester) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rqst", 16)
	}
	return nil
}
