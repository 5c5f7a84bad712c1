package tickets

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/testutil"
)

func newService(t *testing.T) (interfaces.TicketService, *repository.Repositories) {
	t.Helper()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	return NewTicketService(repos.TicketRepository, repos.RequesterRepository, "tck"), repos
}

func TestCreateTicket(t *testing.T) {
	ctx := context.Background()
	service, _ := newService(t)

	ticket, err := service.CreateTicket(ctx, interfaces.NewTicketInput{Title: "  ", Description: "body", SourceMailbox: "support"})
	require.NoError(t, err)
	assert.Equal(t, NoSubjectTitle, ticket.Title)
	assert.Regexp(t, regexp.MustCompile(`^TCK-[2-9A-Z]{8}$`), ticket.Code)

	found, err := service.GetTicketByCode(ctx, ticket.Code)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ticket.ID, found.ID)
}

func TestAddInboundCommentBumpsTicket(t *testing.T) {
	ctx := context.Background()
	service, repos := newService(t)

	first, err := service.CreateTicket(ctx, interfaces.NewTicketInput{Title: "first"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := service.CreateTicket(ctx, interfaces.NewTicketInput{Title: "second"})
	require.NoError(t, err)

	latest, err := service.MostRecentlyUpdated(ctx, []string{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	time.Sleep(5 * time.Millisecond)
	comment, err := service.AddInboundComment(ctx, interfaces.InboundCommentInput{TicketID: first.ID, Body: "more"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, comment.TicketID)

	latest, err = service.MostRecentlyUpdated(ctx, []string{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	comments, err := repos.TicketRepository.ListComments(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	_, err = service.AddInboundComment(ctx, interfaces.InboundCommentInput{TicketID: "tckt_missing"})
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)
}

func TestResolveRequester(t *testing.T) {
	ctx := context.Background()
	service, repos := newService(t)

	byEmail, err := service.ResolveRequester(ctx, interfaces.ResolveRequesterInput{Email: "Carol@Example.com", DisplayName: "Carol"})
	require.NoError(t, err)
	again, err := service.ResolveRequester(ctx, interfaces.ResolveRequesterInput{Email: "carol@example.com"})
	require.NoError(t, err)
	assert.Equal(t, byEmail.ID, again.ID)

	require.NoError(t, repos.RequesterRepository.Create(ctx, &models.Requester{ID: "user_dave", Email: "dave@corp.example"}))
	userID := "user_dave"
	bound, err := service.ResolveRequester(ctx, interfaces.ResolveRequesterInput{Email: "dave.alias@example.com", BoundUserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, "user_dave", bound.ID)

	newUser := "user_erin"
	created, err := service.ResolveRequester(ctx, interfaces.ResolveRequesterInput{Email: "erin@example.com", BoundUserID: &newUser})
	require.NoError(t, err)
	assert.Equal(t, "user_erin", created.ID)

	_, err = service.ResolveRequester(ctx, interfaces.ResolveRequesterInput{})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}
