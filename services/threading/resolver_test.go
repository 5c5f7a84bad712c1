package threading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/testutil"
	"github.com/customeros/mailintake/internal/utils"
	"github.com/customeros/mailintake/services/tickets"
)

type fixture struct {
	repos    *repository.Repositories
	tickets  interfaces.TicketService
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	ticketService := tickets.NewTicketService(repos.TicketRepository, repos.RequesterRepository, "TCK")
	return &fixture{
		repos:    repos,
		tickets:  ticketService,
		resolver: NewDefaultResolver(testutil.NewTestLogger(), ticketService, repos.TicketMessageRepository, "TCK"),
	}
}

func (f *fixture) ticketWithMessage(t *testing.T, messageID string) *models.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, interfaces.NewTicketInput{Title: messageID})
	require.NoError(t, err)
	require.NoError(t, f.repos.TicketMessageRepository.Create(ctx, &models.TicketMessage{
		TicketID:  ticket.ID,
		Direction: enum.MessageInbound,
		MessageID: utils.StringPtrOrNil(messageID),
	}))
	return ticket
}

func TestResolve_NoMatch(t *testing.T) {
	f := newFixture(t)

	resolution, err := f.resolver.Resolve(context.Background(), &dto.ParsedEmail{MessageID: "new@x", Subject: "hello"})
	require.NoError(t, err)
	assert.False(t, resolution.Matched())
}

func TestResolve_SubjectCode(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticketWithMessage(t, "root@x")

	resolution, err := f.resolver.Resolve(context.Background(), &dto.ParsedEmail{
		Subject: "Re: [" + ticket.Code + "] printer",
	})
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, resolution.TicketID)
	assert.Equal(t, "subject_code", resolution.Matcher)

	// unknown codes fall through to the other matchers
	resolution, err = f.resolver.Resolve(context.Background(), &dto.ParsedEmail{Subject: "[TCK-ZZZZZZZZ] ghost"})
	require.NoError(t, err)
	assert.False(t, resolution.Matched())
}

func TestResolve_SubjectCodeWinsOverHeaderChain(t *testing.T) {
	f := newFixture(t)
	byCode := f.ticketWithMessage(t, "code-root@x")
	byHeader := f.ticketWithMessage(t, "header-root@x")

	resolution, err := f.resolver.Resolve(context.Background(), &dto.ParsedEmail{
		Subject:   "[" + byCode.Code + "] mixed up",
		InReplyTo: "header-root@x",
	})
	require.NoError(t, err)
	assert.Equal(t, byCode.ID, resolution.TicketID)
	assert.NotEqual(t, byHeader.ID, resolution.TicketID)
}

func TestResolve_HeaderChainPrefersMostRecentlyUpdated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	older := f.ticketWithMessage(t, "a@x")
	time.Sleep(2 * time.Millisecond)
	newer := f.ticketWithMessage(t, "b@x")

	resolution, err := f.resolver.Resolve(ctx, &dto.ParsedEmail{References: []string{"a@x", "b@x"}})
	require.NoError(t, err)
	assert.Equal(t, "header_chain", resolution.Matcher)
	assert.Equal(t, newer.ID, resolution.TicketID)

	require.NoError(t, f.repos.TicketRepository.Touch(ctx, older.ID, utils.Now().Add(time.Hour)))
	resolution, err = f.resolver.Resolve(ctx, &dto.ParsedEmail{References: []string{"a@x", "b@x"}})
	require.NoError(t, err)
	assert.Equal(t, older.ID, resolution.TicketID)
}

func TestResolve_RunChainKeepsUnknownRootTogether(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticketWithMessage(t, "first-reply@x")

	// first reply to an unknown root was turned into a ticket earlier in the run
	f.resolver.Record(&dto.ParsedEmail{MessageID: "first-reply@x", InReplyTo: "unknown-root@x", References: []string{"unknown-root@x"}}, ticket.ID)

	resolution, err := f.resolver.Resolve(context.Background(), &dto.ParsedEmail{
		MessageID:  "second-reply@x",
		InReplyTo:  "unknown-root@x",
		References: []string{"unknown-root@x"},
	})
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, resolution.TicketID)
	assert.Equal(t, "run_chain", resolution.Matcher)

	// a fresh resolver starts with an empty cache
	fresh := NewDefaultResolver(testutil.NewTestLogger(), f.tickets, f.repos.TicketMessageRepository, "TCK")
	resolution, err = fresh.Resolve(context.Background(), &dto.ParsedEmail{InReplyTo: "unknown-root@x"})
	require.NoError(t, err)
	assert.False(t, resolution.Matched())
}

func TestSubjectCodeMatcher_Codes(t *testing.T) {
	matcher := NewSubjectCodeMatcher(nil, "TCK")
	assert.Equal(t, []string{"TCK-7K3M9Q2P", "TCK-ABCDEFGH"}, matcher.Codes("Re: [tck-7k3m9q2p] and [TCK-ABCDEFGH]"))
	assert.Empty(t, matcher.Codes("TCK-7K3M9Q2P without brackets"))
	assert.Empty(t, matcher.Codes("[INC-7K3M9Q2P] other prefix"))
}
