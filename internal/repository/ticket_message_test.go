package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/testutil"
	"github.com/customeros/mailintake/internal/utils"
)

func createTicket(t *testing.T, repo *ticketRepository, code string) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{Code: code, Title: code}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestTicketMessageRepository_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	tickets := NewTicketRepository(db).(*ticketRepository)
	repo := NewTicketMessageRepository(db)

	ticket := createTicket(t, tickets, "TCK-AAAAAAAA")

	first := &models.TicketMessage{
		TicketID:  ticket.ID,
		Direction: enum.MessageInbound,
		MessageID: utils.StringPtrOrNil("a@example.com"),
		Mailbox:   "support",
		UID:       utils.Uint32Ptr(101),
	}
	require.NoError(t, repo.Create(ctx, first))

	sameMessageID := &models.TicketMessage{
		TicketID:  ticket.ID,
		Direction: enum.MessageInbound,
		MessageID: utils.StringPtrOrNil("a@example.com"),
		Mailbox:   "billing",
		UID:       utils.Uint32Ptr(1),
	}
	assert.True(t, IsUniqueViolation(repo.Create(ctx, sameMessageID)))

	sameUID := &models.TicketMessage{
		TicketID:  ticket.ID,
		Direction: enum.MessageInbound,
		MessageID: utils.StringPtrOrNil("b@example.com"),
		Mailbox:   "support",
		UID:       utils.Uint32Ptr(101),
	}
	assert.True(t, IsUniqueViolation(repo.Create(ctx, sameUID)))

	// absent identifiers never collide
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Create(ctx, &models.TicketMessage{TicketID: ticket.ID, Direction: enum.MessageOutbound}))
	}

	exists, err := repo.ExistsByMessageID(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByMessageID(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByMailboxUID(ctx, "support", 101)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTicketMessageRepository_TicketIDsByMessageIDs(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	tickets := NewTicketRepository(db).(*ticketRepository)
	repo := NewTicketMessageRepository(db)

	one := createTicket(t, tickets, "TCK-11111111")
	two := createTicket(t, tickets, "TCK-22222222")

	for _, m := range []struct {
		ticket string
		id     string
	}{{one.ID, "root@x"}, {one.ID, "reply@x"}, {two.ID, "other@x"}} {
		require.NoError(t, repo.Create(ctx, &models.TicketMessage{TicketID: m.ticket, Direction: enum.MessageInbound, MessageID: utils.StringPtrOrNil(m.id)}))
	}

	ids, err := repo.TicketIDsByMessageIDs(ctx, []string{"root@x", "reply@x"})
	require.NoError(t, err)
	assert.Equal(t, []string{one.ID}, ids)

	ids, err = repo.TicketIDsByMessageIDs(ctx, []string{"root@x", "other@x", "unknown@x"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{one.ID, two.ID}, ids)

	ids, err = repo.TicketIDsByMessageIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTicketRepository_MostRecentlyUpdated(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testutil.NewTestDB(t)).(*ticketRepository)

	older := createTicket(t, repo, "TCK-OLDOLDOL")
	newer := createTicket(t, repo, "TCK-NEWNEWNE")

	require.NoError(t, repo.Touch(ctx, older.ID, utils.Now().Add(time.Hour)))

	ticket, err := repo.MostRecentlyUpdated(ctx, []string{older.ID, newer.ID})
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, older.ID, ticket.ID)

	ticket, err = repo.MostRecentlyUpdated(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, ticket)

	assert.ErrorIs(t, repo.Touch(ctx, "tckt_missing", utils.Now()), ErrTicketNotFound)

	byCode, err := repo.GetByCode(ctx, "TCK-NEWNEWNE")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, byCode.ID)
}

func TestGormTransactor_RollsBackAndJoins(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	transactor := NewGormTransactor(db)
	tickets := NewTicketRepository(db)

	boom := errors.New("boom")
	err := transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, tickets.Create(ctx, &models.Ticket{Code: "TCK-ROLLBACK", Title: "x"}))
		// nested calls join the outer transaction
		return transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	ticket, err := tickets.GetByCode(ctx, "TCK-ROLLBACK")
	require.NoError(t, err)
	assert.Nil(t, ticket)

	err = transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		return tickets.Create(ctx, &models.Ticket{Code: "TCK-COMMITTD", Title: "x"})
	})
	require.NoError(t, err)

	ticket, err = tickets.GetByCode(ctx, "TCK-COMMITTD")
	require.NoError(t, err)
	assert.NotNil(t, ticket)
}

func TestAllowedSenderRepository_FindActive(t *testing.T) {
	ctx := context.Background()
	repo := NewAllowedSenderRepository(testutil.NewTestDB(t))

	user := "user_1"
	require.NoError(t, repo.Create(ctx, &models.AllowedSender{Type: enum.AllowedSenderEmail, Value: " Alice@Example.com ", UserID: &user, Active: true}))
	require.NoError(t, repo.Create(ctx, &models.AllowedSender{Type: enum.AllowedSenderDomain, Value: "partner.io", Active: false}))
	assert.ErrorIs(t, repo.Create(ctx, &models.AllowedSender{Type: "group", Value: "x"}), ErrInvalidInput)

	sender, err := repo.FindActive(ctx, enum.AllowedSenderEmail, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, sender)
	assert.Equal(t, "user_1", *sender.UserID)

	sender, err = repo.FindActive(ctx, enum.AllowedSenderDomain, "partner.io")
	require.NoError(t, err)
	assert.Nil(t, sender)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: ingest_log.mailbox, ingest_log.uid")))
}

func TestRequesterRepository_FirstOrCreate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	repo := NewRequesterRepository(db)

	first, err := repo.FirstOrCreate(ctx, &models.Requester{Email: "Alice@Example.com", DisplayName: "Alice"})
	require.NoError(t, err)

	second, err := repo.FirstOrCreate(ctx, &models.Requester{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice", second.DisplayName)

	// inside an outer transaction the insert runs under a savepoint
	err = NewGormTransactor(db).WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.FirstOrCreate(ctx, &models.Requester{Email: "bob@example.com"})
		return err
	})
	require.NoError(t, err)

	bob, err := repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotNil(t, bob)
}
