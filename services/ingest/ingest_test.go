package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	mierrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
)

func TestRunMailbox_NewTicketUnauthorizedAndReply(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")

	mb.add(101, message{from: "Alice <alice@customer.com>", subject: "Printer on fire", messageID: "m1@customer.com"}.raw())
	mb.add(102, message{from: "mallory@evil.example", subject: "Cheap watches", messageID: "spam@evil.example"}.raw())
	mb.add(103, message{from: "bob@customer.com", subject: "Re: Printer on fire", messageID: "m2@customer.com",
		references: []string{"m1@customer.com"}}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, uint32(0), summary.PreviousUID)
	assert.Equal(t, uint32(103), summary.Watermark)
	assert.Equal(t, uint32(103), h.watermark("support"))

	first := h.ledger("support", 101)
	require.NotNil(t, first)
	assert.Equal(t, enum.IngestProcessed, first.Status)
	assert.Equal(t, enum.ReasonNewTicket, first.Reason)
	require.NotNil(t, first.TicketID)

	spam := h.ledger("support", 102)
	require.NotNil(t, spam)
	assert.Equal(t, enum.IngestSkipped, spam.Status)
	assert.Equal(t, enum.ReasonUnauthorizedSender, spam.Reason)
	assert.Nil(t, spam.TicketID)

	reply := h.ledger("support", 103)
	require.NotNil(t, reply)
	assert.Equal(t, enum.ReasonComment, reply.Reason)
	require.NotNil(t, reply.TicketID)
	assert.Equal(t, *first.TicketID, *reply.TicketID)

	assert.Equal(t, int64(1), h.count(&models.Ticket{}))
	assert.Equal(t, int64(1), h.count(&models.TicketComment{}))
	assert.Equal(t, int64(2), h.count(&models.TicketMessage{}))
	assert.Equal(t, int64(1), h.count(&models.IngestRun{}))

	assert.True(t, mb.isSeen(101))
	assert.True(t, mb.isSeen(102))
	assert.True(t, mb.isSeen(103))

	events := h.notifier.Events()
	require.Len(t, events, 2)
	types := []string{events[0].Type, events[1].Type}
	assert.ElementsMatch(t, []string{dto.TicketEventCreated, dto.TicketEventCommentAdded}, types)
}

func TestRunMailbox_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "Help", messageID: "a@customer.com"}.raw())
	mb.add(2, message{from: "alice@customer.com", subject: "More help", messageID: "b@customer.com"}.raw())

	_, err := h.run(mailbox)
	require.NoError(t, err)

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())

	// An operator rewinding the watermark replays the uids against the ledger.
	_, err = h.repos.MailboxStateRepository.Reset(h.ctx, "support", 0)
	require.NoError(t, err)

	summary, err = h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	for _, outcome := range summary.Outcomes {
		assert.Equal(t, enum.ReasonDuplicateUID.String(), outcome.Reason)
	}
	assert.Equal(t, int64(2), h.count(&models.Ticket{}))
	assert.Equal(t, int64(2), h.count(&models.IngestLogEntry{}))
	assert.Equal(t, uint32(2), h.watermark("support"))
}

func TestRunMailbox_ReplayAfterLedgerFailureKeepsOneTicket(t *testing.T) {
	var ledger *failingLedger
	h := newHarness(t, withLedger(func(base interfaces.IngestLogRepository) interfaces.IngestLogRepository {
		ledger = &failingLedger{IngestLogRepository: base, failUID: map[uint32]bool{101: true}}
		return ledger
	}))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(101, message{from: "alice@customer.com", subject: "Crash", messageID: "crash@customer.com"}.raw())

	_, err := h.run(mailbox)
	require.Error(t, err)
	assert.True(t, mierrors.IsMailboxScoped(err))
	assert.Equal(t, uint32(0), h.watermark("support"))
	assert.Equal(t, int64(1), h.count(&models.Ticket{}))

	ledger.heal()
	summary, err := h.run(mailbox)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, enum.ReasonDuplicateUID.String(), summary.Outcomes[0].Reason)

	assert.Equal(t, int64(1), h.count(&models.Ticket{}))
	assert.Equal(t, uint32(101), h.watermark("support"))
}

func TestRunMailbox_DuplicateMessageIDAcrossMailboxes(t *testing.T) {
	h := newHarness(t)
	sales := h.addMailbox("sales")
	support := h.addMailbox("support")
	raw := message{from: "alice@customer.com", subject: "CC'd both", messageID: "shared@customer.com"}.raw()
	h.dialer.mailbox("sales").add(5, raw)
	h.dialer.mailbox("support").add(9, raw)

	_, err := h.run(sales)
	require.NoError(t, err)
	summary, err := h.run(support)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, enum.IngestSkipped.String(), summary.Outcomes[0].Status)
	assert.Equal(t, enum.ReasonDuplicateMessageID.String(), summary.Outcomes[0].Reason)
	assert.Equal(t, int64(1), h.count(&models.Ticket{}))
	assert.Equal(t, uint32(9), h.watermark("support"))
}

func TestRunMailbox_InReplyToAcrossRuns(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "VPN down", messageID: "vpn@customer.com"}.raw())

	_, err := h.run(mailbox)
	require.NoError(t, err)

	mb.add(2, message{from: "alice@customer.com", subject: "Re: VPN down", messageID: "vpn2@customer.com",
		inReplyTo: "vpn@customer.com"}.raw())
	summary, err := h.run(mailbox)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, enum.ReasonComment.String(), summary.Outcomes[0].Reason)
	assert.Equal(t, h.ledger("support", 1).TicketID, h.ledger("support", 2).TicketID)
	assert.Equal(t, int64(1), h.count(&models.Ticket{}))
}

func TestRunMailbox_SubjectCodeThreadsWithoutHeaders(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "Laptop", messageID: "laptop@customer.com"}.raw())

	_, err := h.run(mailbox)
	require.NoError(t, err)
	ticketID := h.ledger("support", 1).TicketID
	require.NotNil(t, ticketID)

	var ticket models.Ticket
	require.NoError(t, h.db.First(&ticket, "id = ?", *ticketID).Error)

	mb.add(2, message{from: "carol@customer.com", subject: "Re: [" + ticket.Code + "] Laptop", messageID: "other@customer.com"}.raw())
	summary, err := h.run(mailbox)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, enum.ReasonComment.String(), summary.Outcomes[0].Reason)
	assert.Equal(t, ticket.ID, summary.Outcomes[0].TicketID)
}

func TestRunMailbox_DropsDeniedAttachments(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{
		from:      "alice@customer.com",
		subject:   "Logs attached",
		messageID: "logs@customer.com",
		attachments: map[string]string{
			"report.txt":  "disk usage at 99%",
			"payload.php": "<?php system($_GET['c']); ?>",
		},
	}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.DroppedAttachments)

	var stored []models.TicketMessageAttachment
	require.NoError(t, h.db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "report.txt", stored[0].Filename)

	data, err := h.storage.Download(h.ctx, stored[0].StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "disk usage at 99%", string(data))

	var msg models.TicketMessage
	require.NoError(t, h.db.First(&msg).Error)
	assert.Equal(t, 1, msg.DroppedAttachments)
}

func TestRunMailbox_StorageFailureRollsBack(t *testing.T) {
	var failing *failingStorage
	h := newHarness(t, withStorage(func(base interfaces.StorageService) interfaces.StorageService {
		failing = &failingStorage{StorageService: base, failOn: 2}
		return failing
	}))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{
		from:      "alice@customer.com",
		subject:   "Two files",
		messageID: "files@customer.com",
		attachments: map[string]string{
			"a.txt": "first",
			"b.txt": "second",
		},
	}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	entry := h.ledger("support", 1)
	require.NotNil(t, entry)
	assert.Equal(t, enum.IngestFailed, entry.Status)
	assert.Equal(t, enum.ReasonStorageError, entry.Reason)
	require.NotNil(t, entry.ErrorDetail)
	assert.Contains(t, *entry.ErrorDetail, "disk full")

	assert.Equal(t, int64(0), h.count(&models.Ticket{}))
	assert.Equal(t, int64(0), h.count(&models.TicketMessage{}))
	assert.Equal(t, int64(0), h.count(&models.TicketMessageAttachment{}))
	assert.Len(t, failing.deleted, 1)
	assert.False(t, mb.isSeen(1))
	assert.Equal(t, uint32(1), h.watermark("support"))
	assert.Empty(t, h.notifier.Events())
}

func TestRunMailbox_ParseFailures(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, []byte("   "))
	mb.add(2, message{from: "alice@customer.com", subject: "gone"}.raw())
	mb.fetchErr[2] = mierrors.ErrMessageNotFound

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, enum.ReasonParseError, h.ledger("support", 1).Reason)
	assert.Equal(t, enum.ReasonParseError, h.ledger("support", 2).Reason)
	assert.Equal(t, uint32(2), h.watermark("support"))
}

func TestRunMailbox_TransientFetchErrorKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	for uid := uint32(1); uid <= 3; uid++ {
		mb.add(uid, message{from: "alice@customer.com", subject: "n", messageID: fmt.Sprintf("n%d@customer.com", uid)}.raw())
	}
	mb.fetchErr[2] = errors.New("connection reset by peer")

	summary, err := h.run(mailbox)
	require.Error(t, err)
	assert.Equal(t, mierrors.KindTransientConnection, mierrors.KindOf(err))
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, uint32(1), h.watermark("support"))
	assert.NotContains(t, mb.fetched, uint32(3))

	entry, err := h.repos.IngestLogRepository.Get(h.ctx, "support", 2)
	require.NoError(t, err)
	assert.Nil(t, entry)

	delete(mb.fetchErr, 2)
	summary, err = h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, uint32(3), h.watermark("support"))
}

func TestRunMailbox_LedgerFailureStopsRun(t *testing.T) {
	h := newHarness(t, withLedger(func(base interfaces.IngestLogRepository) interfaces.IngestLogRepository {
		return &failingLedger{IngestLogRepository: base, failUID: map[uint32]bool{2: true}}
	}))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "mallory@evil.example", subject: "x"}.raw())
	mb.add(2, message{from: "mallory@evil.example", subject: "y"}.raw())
	mb.add(3, message{from: "mallory@evil.example", subject: "z"}.raw())

	_, err := h.run(mailbox)
	require.Error(t, err)
	assert.ErrorIs(t, err, mierrors.ErrLedgerUnavailable)
	assert.True(t, mierrors.IsMailboxScoped(err))
	assert.Equal(t, uint32(1), h.watermark("support"))
	assert.Equal(t, []uint32{1, 2}, mb.fetched)
}

func TestRunMailbox_LeaseHeld(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "x"}.raw())

	require.NoError(t, h.repos.MailboxLeaseRepository.Acquire(h.ctx, "support", "other-pod", time.Minute))

	summary, err := h.run(mailbox)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, repository.ErrLeaseHeld)
	assert.Empty(t, mb.fetched)
	assert.Equal(t, uint32(0), h.watermark("support"))
}

func TestRunMailbox_OverlappingRunsInOneProcess(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "first", messageID: "o1@customer.com"}.raw())
	mb.add(2, message{from: "alice@customer.com", subject: "second", messageID: "o2@customer.com"}.raw())

	// A second run on the same poller (same holder) starts while the first is mid-mailbox.
	var overlapSummary *dto.RunSummary
	var overlapErr error
	mb.onFetch = func(uid uint32) {
		if uid == 1 {
			overlapSummary, overlapErr = h.poller.RunMailbox(h.ctx, mailbox)
		}
	}

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)

	assert.Nil(t, overlapSummary)
	assert.ErrorIs(t, overlapErr, repository.ErrLeaseHeld)
	assert.Equal(t, []uint32{1, 2}, mb.fetched)
	assert.Equal(t, int64(2), h.count(&models.Ticket{}))
	assert.Equal(t, int64(1), h.count(&models.IngestRun{}))

	// The finished run released its own lease only.
	mb.onFetch = nil
	summary, err = h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
}

func TestRunMailbox_UIDValidityChangeNeedsReset(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "x", messageID: "v1@customer.com"}.raw())

	_, err := h.run(mailbox)
	require.NoError(t, err)

	mb.mu.Lock()
	mb.uidValidity = 7
	mb.mu.Unlock()
	mb.add(2, message{from: "alice@customer.com", subject: "y", messageID: "v2@customer.com"}.raw())

	_, err = h.run(mailbox)
	require.Error(t, err)
	assert.ErrorIs(t, err, mierrors.ErrUIDValidityChanged)
	assert.Equal(t, mierrors.KindConfig, mierrors.KindOf(err))
	assert.Equal(t, uint32(1), h.watermark("support"))

	_, err = h.repos.MailboxStateRepository.Reset(h.ctx, "support", 1)
	require.NoError(t, err)

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	state, err := h.repos.MailboxStateRepository.GetState(h.ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), state.UIDValidity)
	assert.Equal(t, uint32(2), state.LastSeenUID)
}

func TestRunMailbox_MessageCap(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *config.IngestConfig) { cfg.MaxMessagesPerRun = 2 }))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	for uid := uint32(10); uid <= 12; uid++ {
		mb.add(uid, message{from: "mallory@evil.example", subject: "x"}.raw())
	}

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, uint32(11), h.watermark("support"))

	summary, err = h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, uint32(12), h.watermark("support"))
}

func TestRunMailbox_CancellationBetweenMessages(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	for uid := uint32(1); uid <= 3; uid++ {
		mb.add(uid, message{from: "mallory@evil.example", subject: "x"}.raw())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mb.onFetch = func(uid uint32) {
		if uid == 1 {
			cancel()
		}
	}

	summary, err := h.poller.RunMailbox(ctx, mailbox)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, uint32(1), h.watermark("support"))
	assert.Equal(t, []uint32{1}, mb.fetched)

	// The lease was released on the way out.
	mb.onFetch = nil
	summary, err = h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())
}

func TestRunMailbox_NotifierPanicDoesNotAffectOutcome(t *testing.T) {
	h := newHarness(t)
	h.notifier.panics = true
	mailbox := h.addMailbox("support")
	h.dialer.mailbox("support").add(1, message{from: "alice@customer.com", subject: "x", messageID: "p@customer.com"}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Len(t, h.notifier.Events(), 1)
	assert.Equal(t, enum.IngestProcessed, h.ledger("support", 1).Status)
}

func TestRunMailbox_RejectsInvalidMailbox(t *testing.T) {
	h := newHarness(t)
	_, err := h.poller.RunMailbox(h.ctx, &models.Mailbox{Name: "broken"})
	require.Error(t, err)
	assert.ErrorIs(t, err, mierrors.ErrInvalidMailboxConf)
}

func TestRunAll_IsolatesFailingMailbox(t *testing.T) {
	h := newHarness(t)
	h.addMailbox("alpha")
	h.addMailbox("beta")
	disabled := h.addMailbox("gamma")
	require.NoError(t, h.repos.MailboxRepository.SetEnabled(h.ctx, disabled.Name, false))

	h.dialer.mailbox("alpha").add(1, message{from: "alice@customer.com", subject: "ok", messageID: "ok@customer.com"}.raw())
	h.dialer.mailbox("beta").dialErr = errors.New("authentication failed")
	h.dialer.mailbox("gamma").add(1, message{from: "alice@customer.com", subject: "never"}.raw())

	summaries, err := h.runner.RunAll(h.ctx)
	h.processor.WaitNotifications()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox beta")
	assert.NotContains(t, err.Error(), "mailbox alpha")
	assert.Len(t, summaries, 2)

	assert.Equal(t, uint32(1), h.watermark("alpha"))
	assert.Equal(t, uint32(0), h.watermark("beta"))
	assert.Empty(t, h.dialer.mailbox("gamma").fetched)
}

func TestRunMailbox_StoresRawHTMLOnTicketMessage(t *testing.T) {
	h := newHarness(t)
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	html := `<p onclick="x()">hello</p><script>alert(1)</script>`
	mb.add(1, message{from: "alice@customer.com", subject: "Formatted", messageID: "html@customer.com", html: html}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)

	var stored models.TicketMessage
	require.NoError(t, h.db.Where("mailbox = ? AND uid = ?", "support", 1).First(&stored).Error)
	assert.Contains(t, stored.BodyHTML, `onclick="x()"`)
	assert.Contains(t, stored.BodyHTML, "<script>alert(1)</script>")

	var ticket models.Ticket
	require.NoError(t, h.db.Where("id = ?", stored.TicketID).First(&ticket).Error)
	assert.Contains(t, ticket.Description, "hello")
	assert.NotContains(t, ticket.Description, "onclick")
	assert.NotContains(t, ticket.Description, "<script>")
}

func TestRunMailbox_MarkSeenOnSkipDisabled(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *config.IngestConfig) { cfg.MarkSeenOnSkip = false }))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "mallory@evil.example", subject: "Cheap watches", messageID: "spam@evil.example"}.raw())
	mb.add(2, message{from: "alice@customer.com", subject: "Help", messageID: "help@customer.com"}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)

	skipped := h.ledger("support", 1)
	require.NotNil(t, skipped)
	assert.Equal(t, enum.ReasonUnauthorizedSender, skipped.Reason)
	assert.False(t, mb.isSeen(1))
	assert.True(t, mb.isSeen(2))
	assert.Equal(t, uint32(2), h.watermark("support"))
}

func TestRunMailbox_UnrelatedUniqueViolationIsDBError(t *testing.T) {
	h := newHarness(t, withRepositories(func(repos *repository.Repositories) {
		repos.TicketMessageAttachmentRepository = collidingAttachments{repos.TicketMessageAttachmentRepository}
	}))
	mailbox := h.addMailbox("support")
	mb := h.dialer.mailbox("support")
	mb.add(1, message{from: "alice@customer.com", subject: "Logs", messageID: "logs@customer.com",
		attachments: map[string]string{"log.txt": "line one"}}.raw())

	summary, err := h.run(mailbox)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	entry := h.ledger("support", 1)
	require.NotNil(t, entry)
	assert.Equal(t, enum.IngestFailed, entry.Status)
	assert.Equal(t, enum.ReasonDBError, entry.Reason)
	assert.Equal(t, int64(0), h.count(&models.TicketMessage{}))
	assert.Equal(t, int64(0), h.count(&models.Ticket{}))
}
