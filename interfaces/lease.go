package interfaces

import "context"

// LeaseManager grants exclusive ownership of a mailbox for the duration of a run.
type LeaseManager interface {
	Acquire(ctx context.Context, mailbox, holder string) error
	Release(ctx context.Context, mailbox, holder string) error
}
