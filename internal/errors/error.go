package errors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/customeros/mailintake/internal/enum"
)

var (
	ErrConnectionTimeout   = errors.New("connection timeout")
	ErrUIDValidityChanged  = errors.New("uid validity changed, watermark reset required")
	ErrInvalidMailboxConf  = errors.New("invalid mailbox configuration")
	ErrUnauthorizedSender  = errors.New("sender is not on the allow list")
	ErrDuplicateMessageID  = errors.New("message id already ingested")
	ErrDuplicateUID        = errors.New("mailbox uid already ingested")
	ErrLedgerUnavailable   = errors.New("ingest ledger unavailable")
	ErrAttachmentRejected  = errors.New("attachment rejected")
	ErrStorageWriteFailure = errors.New("attachment storage write failed")
	ErrMessageNotFound     = errors.New("message not found on server")
)

// Kind classifies an ingestion failure and decides how far it propagates.
type Kind string

const (
	KindTransientConnection Kind = "transient_connection"
	KindConfig              Kind = "config"
	KindParse               Kind = "parse"
	KindUnauthorizedSender  Kind = "unauthorized_sender"
	KindDuplicate           Kind = "duplicate"
	KindStorage             Kind = "storage"
	KindDatabase            Kind = "database"
)

type IngestError struct {
	Kind   Kind
	Reason enum.IngestReason
	// MailboxScoped errors abort the run of the mailbox they occurred in.
	MailboxScoped bool
	Err           error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func NewTransientConnectionError(err error, msg string) error {
	return &IngestError{Kind: KindTransientConnection, MailboxScoped: true, Err: errors.Wrap(err, msg)}
}

func NewConfigError(err error, msg string) error {
	return &IngestError{Kind: KindConfig, MailboxScoped: true, Err: errors.Wrap(err, msg)}
}

func NewParseError(err error) error {
	return &IngestError{Kind: KindParse, Reason: enum.ReasonParseError, Err: err}
}

func NewUnauthorizedSenderError(address string) error {
	return &IngestError{Kind: KindUnauthorizedSender, Reason: enum.ReasonUnauthorizedSender, Err: errors.Wrap(ErrUnauthorizedSender, address)}
}

func NewDuplicateError(reason enum.IngestReason) error {
	base := ErrDuplicateUID
	if reason == enum.ReasonDuplicateMessageID {
		base = ErrDuplicateMessageID
	}
	return &IngestError{Kind: KindDuplicate, Reason: reason, Err: base}
}

func NewStorageError(err error) error {
	return &IngestError{Kind: KindStorage, Reason: enum.ReasonStorageError, Err: err}
}

func NewDatabaseError(err error) error {
	return &IngestError{Kind: KindDatabase, Reason: enum.ReasonDBError, Err: err}
}

// NewLedgerUnavailableError marks a failed ledger append. Without the ledger no
// further message in the mailbox can reach a terminal outcome, so it stops the run.
func NewLedgerUnavailableError(err error) error {
	return &IngestError{Kind: KindStorage, Reason: enum.ReasonDBError, MailboxScoped: true, Err: errors.Wrap(ErrLedgerUnavailable, err.Error())}
}

func AsIngestError(err error) (*IngestError, bool) {
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if ingestErr, ok := AsIngestError(err); ok {
		return ingestErr.Kind
	}
	return ""
}

func IsMailboxScoped(err error) bool {
	if ingestErr, ok := AsIngestError(err); ok {
		return ingestErr.MailboxScoped
	}
	return false
}
