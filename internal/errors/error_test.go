package errors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailintake/internal/enum"
)

func TestIngestError_Scopes(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")

	assert.True(t, IsMailboxScoped(NewTransientConnectionError(cause, "connect")))
	assert.True(t, IsMailboxScoped(NewConfigError(ErrInvalidMailboxConf, "validate")))
	assert.True(t, IsMailboxScoped(NewLedgerUnavailableError(cause)))

	assert.False(t, IsMailboxScoped(NewParseError(cause)))
	assert.False(t, IsMailboxScoped(NewStorageError(cause)))
	assert.False(t, IsMailboxScoped(NewDuplicateError(enum.ReasonDuplicateUID)))
	assert.False(t, IsMailboxScoped(cause))
}

func TestIngestError_UnwrapAndKind(t *testing.T) {
	err := errors.Wrap(NewDuplicateError(enum.ReasonDuplicateMessageID), "process")

	assert.Equal(t, KindDuplicate, KindOf(err))
	assert.True(t, errors.Is(err, ErrDuplicateMessageID))

	ingestErr, ok := AsIngestError(err)
	assert.True(t, ok)
	assert.Equal(t, enum.ReasonDuplicateMessageID, ingestErr.Reason)
	assert.Equal(t, enum.IngestSkipped, ingestErr.Reason.Status())
}

func TestIngestError_ReasonsMapToStatus(t *testing.T) {
	assert.Equal(t, enum.IngestFailed, NewParseError(errors.New("bad")).(*IngestError).Reason.Status())
	assert.Equal(t, enum.IngestFailed, NewStorageError(errors.New("disk")).(*IngestError).Reason.Status())
	assert.Equal(t, enum.IngestSkipped, NewUnauthorizedSenderError("x@y.z").(*IngestError).Reason.Status())
	assert.Equal(t, "", string(KindOf(nil)))
}
