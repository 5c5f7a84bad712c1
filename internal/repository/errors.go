package repository

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrMailboxNotFound   = errors.New("mailbox not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrWatermarkConflict = errors.New("mailbox state was modified concurrently")
	ErrLeaseHeld         = errors.New("mailbox lease is held by another run")
	ErrInvalidInput      = errors.New("invalid input parameters")
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err was caused by a unique or primary key
// constraint, independent of the configured driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
