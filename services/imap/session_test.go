package imap

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/testutil"
)

// the memory backend ships an INBOX holding a single message with uid 6
const seededUID = 6

func startTestServer(t *testing.T) (*models.Mailbox, backend.Mailbox) {
	t.Helper()

	be := memory.New()
	srv := server.New(be)
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	inbox, err := user.GetMailbox("INBOX")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	return &models.Mailbox{
		Name:     "support",
		Host:     "127.0.0.1",
		Port:     addr.Port,
		Username: "username",
		Password: "password",
		Folder:   "INBOX",
		Enabled:  true,
	}, inbox
}

func appendMessage(t *testing.T, inbox backend.Mailbox, subject string) {
	t.Helper()
	raw := fmt.Sprintf("From: alice@example.com\r\nTo: support@example.com\r\nSubject: %s\r\nMessage-ID: <%s@example.com>\r\n\r\nbody of %s\r\n", subject, subject, subject)
	require.NoError(t, inbox.CreateMessage(nil, time.Now(), bytes.NewBufferString(raw)))
}

func TestSession_SelectSearchFetch(t *testing.T) {
	ctx := context.Background()
	mailbox, inbox := startTestServer(t)
	appendMessage(t, inbox, "first")
	appendMessage(t, inbox, "second")

	sess, err := NewDialer(5*time.Second, testutil.NewTestLogger()).Dial(ctx, mailbox)
	require.NoError(t, err)
	defer sess.Close()

	uidValidity, err := sess.Select(ctx, "INBOX")
	require.NoError(t, err)
	assert.NotZero(t, uidValidity)

	uids, err := sess.SearchUIDsAfter(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{seededUID, seededUID + 1, seededUID + 2}, uids)

	uids, err = sess.SearchUIDsAfter(ctx, seededUID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{seededUID + 1, seededUID + 2}, uids)

	// a watermark at or past the highest uid yields nothing
	uids, err = sess.SearchUIDsAfter(ctx, seededUID+2)
	require.NoError(t, err)
	assert.Empty(t, uids)

	raw, err := sess.FetchRaw(ctx, seededUID+1)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: first")

	_, err = sess.FetchRaw(ctx, 999)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestSession_MarkSeen(t *testing.T) {
	ctx := context.Background()
	mailbox, inbox := startTestServer(t)
	appendMessage(t, inbox, "unseen")

	sess, err := NewDialer(5*time.Second, testutil.NewTestLogger()).Dial(ctx, mailbox)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Select(ctx, "INBOX")
	require.NoError(t, err)

	// fetching must not flag the message
	_, err = sess.FetchRaw(ctx, seededUID+1)
	require.NoError(t, err)
	assert.False(t, hasSeenFlag(t, inbox, seededUID+1))

	require.NoError(t, sess.MarkSeen(ctx, seededUID+1))
	assert.True(t, hasSeenFlag(t, inbox, seededUID+1))
}

func TestDialer_LoginFailure(t *testing.T) {
	mailbox, _ := startTestServer(t)
	mailbox.Password = "wrong"

	_, err := NewDialer(5*time.Second, testutil.NewTestLogger()).Dial(context.Background(), mailbox)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to login")
}

func TestDialer_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = NewDialer(time.Second, testutil.NewTestLogger()).Dial(context.Background(), &models.Mailbox{Name: "x", Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func hasSeenFlag(t *testing.T, inbox backend.Mailbox, uid uint32) bool {
	t.Helper()

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	messages := make(chan *imap.Message, 1)
	require.NoError(t, inbox.ListMessages(true, seqSet, []imap.FetchItem{imap.FetchFlags}, messages))

	for msg := range messages {
		for _, flag := range msg.Flags {
			if flag == imap.SeenFlag {
				return true
			}
		}
	}
	return false
}
