package utils

import (
	"context"
)

// IngestContext carries the identifiers of the run currently handling a mailbox.
type IngestContext struct {
	RunID   string
	Mailbox string
	UID     uint32
}

type ingestContextKey struct{}

func WithIngestContext(ctx context.Context, ingestContext *IngestContext) context.Context {
	return context.WithValue(ctx, ingestContextKey{}, ingestContext)
}

func GetIngestContext(ctx context.Context) *IngestContext {
	ingestContext, ok := ctx.Value(ingestContextKey{}).(*IngestContext)
	if !ok {
		return new(IngestContext)
	}
	return ingestContext
}

func GetRunIDFromContext(ctx context.Context) string {
	return GetIngestContext(ctx).RunID
}

func GetMailboxFromContext(ctx context.Context) string {
	return GetIngestContext(ctx).Mailbox
}

// WithMessageUID returns a copy of the ingest context scoped to a single message.
func WithMessageUID(ctx context.Context, uid uint32) context.Context {
	current := *GetIngestContext(ctx)
	current.UID = uid
	return WithIngestContext(ctx, &current)
}
