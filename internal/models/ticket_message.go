package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/utils"
)

// TicketMessage links a raw email to the ticket or comment it produced.
// Rows are written once and never updated.
type TicketMessage struct {
	ID          string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketID    string                `gorm:"column:ticket_id;type:varchar(50);index;not null" json:"ticketId"`
	CommentID   *string               `gorm:"column:comment_id;type:varchar(50)" json:"commentId,omitempty"`
	Direction   enum.MessageDirection `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	FromAddress string                `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	FromName    string                `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	Subject     string                `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	BodyText    string                `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML    string                `gorm:"column:body_html;type:text" json:"bodyHtml"`
	RawHeaders  Headers               `gorm:"column:raw_headers;type:text" json:"rawHeaders"`

	// Threading identifiers, stored without angle brackets
	MessageID  *string  `gorm:"column:message_id;type:varchar(998);uniqueIndex:uq_ticket_messages_message_id" json:"messageId,omitempty"`
	InReplyTo  string   `gorm:"column:in_reply_to;type:varchar(998);index" json:"inReplyTo"`
	References []string `gorm:"column:references;type:text;serializer:json" json:"references"`

	// Origin; outbound rows carry no uid
	Mailbox string  `gorm:"column:mailbox;type:varchar(100);uniqueIndex:uq_ticket_messages_mailbox_uid,priority:1" json:"mailbox"`
	UID     *uint32 `gorm:"column:uid;uniqueIndex:uq_ticket_messages_mailbox_uid,priority:2" json:"uid,omitempty"`

	Classification     enum.EmailClassification `gorm:"column:classification;type:varchar(50)" json:"classification"`
	DroppedAttachments int                      `gorm:"column:dropped_attachments;not null;default:0" json:"droppedAttachments"`

	Attachments []TicketMessageAttachment `gorm:"foreignKey:TicketMessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TicketMessage) TableName() string {
	return "ticket_messages"
}

func (m *TicketMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("tmsg", 16)
	}
	return nil
}

type TicketMessageAttachment struct {
	ID              string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketMessageID string `gorm:"column:ticket_message_id;type:varchar(50);index;not null" json:"ticketMessageId"`
	Filename        string `gorm:"column:filename;type:varchar(500)" json:"filename"`
	MimeType        string `gorm:"column:mime_type;type:varchar(255)" json:"mimeType"`
	DeclaredType    string `gorm:"column:declared_type;type:varchar(255)" json:"declaredType"`
	Size            int64  `gorm:"column:size;not null;default:0" json:"size"`
	ContentID       string `gorm:"column:content_id;type:varchar(255)" json:"contentId,omitempty"`
	Inline          bool   `gorm:"column:inline;not null;default:false" json:"inline"`

	StorageService string `gorm:"column:storage_service;type:varchar(50)" json:"storageService"`
	StoragePath    string `gorm:"column:storage_path;type:varchar(1000);not null" json:"storagePath"`
	ContentHash    string `gorm:"column:content_hash;type:varchar(64);index" json:"contentHash"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TicketMessageAttachment) TableName() string {
	return "ticket_message_attachments"
}

func (a *TicketMessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	return nil
}
