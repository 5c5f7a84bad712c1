package enum

type IngestStatus string

const (
	IngestProcessed IngestStatus = "processed"
	IngestSkipped   IngestStatus = "skipped"
	IngestFailed    IngestStatus = "failed"
)

func (s IngestStatus) String() string {
	return string(s)
}

func (s IngestStatus) IsValid() bool {
	switch s {
	case IngestProcessed, IngestSkipped, IngestFailed:
		return true
	}
	return false
}

type IngestReason string

const (
	// processed
	ReasonNewTicket IngestReason = "new_ticket"
	ReasonComment   IngestReason = "comment"

	// skipped
	ReasonUnauthorizedSender IngestReason = "unauthorized_sender"
	ReasonDuplicateMessageID IngestReason = "duplicate_message_id"
	ReasonDuplicateUID       IngestReason = "duplicate_uid"

	// failed
	ReasonParseError   IngestReason = "parse_error"
	ReasonStorageError IngestReason = "storage_error"
	ReasonDBError      IngestReason = "db_error"
)

func (r IngestReason) String() string {
	return string(r)
}

// Status returns the ledger status a reason belongs to.
func (r IngestReason) Status() IngestStatus {
	switch r {
	case ReasonNewTicket, ReasonComment:
		return IngestProcessed
	case ReasonUnauthorizedSender, ReasonDuplicateMessageID, ReasonDuplicateUID:
		return IngestSkipped
	default:
		return IngestFailed
	}
}

type AttachmentRejection string

const (
	AttachmentDeniedExtension AttachmentRejection = "denied_extension"
	AttachmentTooLarge        AttachmentRejection = "too_large"
)

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

type StorageBackend string

const (
	StorageFilesystem StorageBackend = "filesystem"
	StorageS3         StorageBackend = "s3"
	StorageR2         StorageBackend = "r2"
)

type LeaseBackend string

const (
	LeaseDatabase LeaseBackend = "db"
	LeaseRedis    LeaseBackend = "redis"
)
