package dto

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id        string      `json:"id"`
	EntityId  string      `json:"entityId"`
	EventType string      `json:"eventType"`
	Data      interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Mailbox     string `json:"mailbox"`
	RunId       string `json:"runId"`
	Timestamp   string `json:"timestamp"`
}

const (
	TicketEventCreated      = "TicketCreated"
	TicketEventCommentAdded = "TicketCommentAdded"
)

// TicketEvent is published after an inbound message created a ticket or comment.
type TicketEvent struct {
	Type            string `json:"type"`
	TicketID        string `json:"ticketId"`
	TicketCode      string `json:"ticketCode"`
	CommentID       string `json:"commentId,omitempty"`
	TicketMessageID string `json:"ticketMessageId"`
	Mailbox         string `json:"mailbox"`
	UID             uint32 `json:"uid"`
	From            string `json:"from"`
	Subject         string `json:"subject"`
}
