package authorizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/testutil"
)

func seed(t *testing.T) *repository.Repositories {
	t.Helper()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	ctx := context.Background()

	user := "user_alice"
	for _, sender := range []*models.AllowedSender{
		{Type: enum.AllowedSenderEmail, Value: "alice@example.com", UserID: &user, Active: true},
		{Type: enum.AllowedSenderDomain, Value: "partner.io", Active: true},
		{Type: enum.AllowedSenderDomain, Value: "bücher.de", Active: true},
		{Type: enum.AllowedSenderEmail, Value: "mallory@example.com", Active: false},
	} {
		require.NoError(t, repos.AllowedSenderRepository.Create(ctx, sender))
	}
	return repos
}

func TestAuthorize(t *testing.T) {
	repos := seed(t)
	authorizer := NewAuthorizer(repos.AllowedSenderRepository, false)
	ctx := context.Background()

	decision, err := authorizer.Authorize(ctx, "  Alice@EXAMPLE.com ")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, RuleEmail, decision.Rule)
	require.NotNil(t, decision.UserID)
	assert.Equal(t, "user_alice", *decision.UserID)

	decision, err = authorizer.Authorize(ctx, "Bob <bob@Partner.IO>")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, RuleDomain, decision.Rule)
	assert.Nil(t, decision.UserID)

	decision, err = authorizer.Authorize(ctx, "carol@xn--bcher-kva.de")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, RuleDomain, decision.Rule)

	decision, err = authorizer.Authorize(ctx, "mallory@example.com")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, RuleNone, decision.Rule)

	decision, err = authorizer.Authorize(ctx, "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorize_AllowUnknownSenders(t *testing.T) {
	repos := seed(t)
	authorizer := NewAuthorizer(repos.AllowedSenderRepository, true)

	decision, err := authorizer.Authorize(context.Background(), "stranger@elsewhere.org")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, RuleUnknownAllowed, decision.Rule)
	assert.Nil(t, decision.Entry)

	// an explicit entry still wins so that its bound user is used
	decision, err = authorizer.Authorize(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, RuleEmail, decision.Rule)
}

func TestNormalizeAddress(t *testing.T) {
	address, domain := NormalizeAddress("Dana <Dana@Bücher.DE>")
	assert.Equal(t, "xn--bcher-kva.de", domain)
	assert.Equal(t, "dana@xn--bcher-kva.de", address)

	address, domain = NormalizeAddress("not-an-address")
	assert.Equal(t, "not-an-address", address)
	assert.Empty(t, domain)
}
