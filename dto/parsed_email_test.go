package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsedEmail_PreferredBody(t *testing.T) {
	email := &ParsedEmail{TextBody: "plain"}
	assert.Equal(t, "plain", email.PreferredBody())

	email.HTMLBody = "<p>html</p>"
	assert.Equal(t, "<p>html</p>", email.PreferredBody())
}

func TestParsedEmail_ThreadIdentifiers(t *testing.T) {
	email := &ParsedEmail{
		InReplyTo:  "c@x",
		References: []string{"a@x", "b@x", "c@x"},
	}
	assert.Equal(t, []string{"c@x", "b@x", "a@x"}, email.ThreadIdentifiers())

	assert.Empty(t, (&ParsedEmail{}).ThreadIdentifiers())
}
