package imap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	mierrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/tracing"
)

// ErrMessageNotFound is returned when a uid was expunged between search and fetch.
var ErrMessageNotFound = mierrors.ErrMessageNotFound

type session struct {
	client  *client.Client
	mailbox string
	folder  string
	log     logger.Logger
}

// Select opens folder read-write so that \Seen can be stored.
func (s *session) Select(ctx context.Context, folder string) (uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSession.Select")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("folder", folder)

	status, err := s.client.Select(folder, false)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}
	s.folder = folder
	span.SetTag("uid-validity", status.UidValidity)
	span.SetTag("messages", status.Messages)
	return status.UidValidity, nil
}

// SearchUIDsAfter issues UID SEARCH UID last+1:*. Servers answer "n:*" with
// the highest uid even when it is below n, so the result is filtered again.
func (s *session) SearchUIDsAfter(ctx context.Context, lastSeen uint32) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSession.SearchUIDsAfter")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("last-seen-uid", lastSeen)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(lastSeen+1, 0)

	found, err := s.client.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("uid search failed: %w", err)
	}

	uids := make([]uint32, 0, len(found))
	for _, uid := range found {
		if uid > lastSeen {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	span.SetTag("found", len(uids))
	return uids, nil
}

func (s *session) FetchRaw(ctx context.Context, uid uint32) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSession.FetchRaw")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagUID, uid)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	// peek keeps \Seen untouched until the outcome is recorded
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		if msg == nil || msg.Uid != uid || raw != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("uid fetch %d failed: %w", uid, err)
	}
	if readErr != nil {
		tracing.TraceErr(span, readErr)
		return nil, readErr
	}
	if raw == nil {
		tracing.TraceErr(span, ErrMessageNotFound)
		return nil, fmt.Errorf("uid %d: %w", uid, ErrMessageNotFound)
	}

	span.SetTag("size", len(raw))
	return raw, nil
}

func (s *session) MarkSeen(ctx context.Context, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSession.MarkSeen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagUID, uid)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.client.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to mark uid %d as seen: %w", uid, err)
	}
	return nil
}

// Close logs out, giving up after five seconds.
func (s *session) Close() error {
	s.client.Timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- s.client.Logout()
	}()

	select {
	case err := <-done:
		if err != nil && err != client.ErrAlreadyLoggedOut {
			s.log.Warnf("[%s] error during logout: %v", s.mailbox, err)
			return err
		}
		return nil
	case <-time.After(5 * time.Second):
		s.log.Warnf("[%s] logout timed out", s.mailbox)
		return s.client.Terminate()
	}
}
