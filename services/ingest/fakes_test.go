package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	mierrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/metrics"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/testutil"
	"github.com/customeros/mailintake/services/authorizer"
	"github.com/customeros/mailintake/services/email_filter"
	"github.com/customeros/mailintake/services/lease"
	"github.com/customeros/mailintake/services/parser"
	"github.com/customeros/mailintake/services/storage"
	"github.com/customeros/mailintake/services/tickets"
)

type fakeMailbox struct {
	mu          sync.Mutex
	uidValidity uint32
	messages    map[uint32][]byte
	seen        map[uint32]bool
	dialErr     error
	fetchErr    map[uint32]error
	onFetch     func(uid uint32)
	fetched     []uint32
}

func (m *fakeMailbox) add(uid uint32, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[uid] = raw
}

func (m *fakeMailbox) isSeen(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[uid]
}

type fakeDialer struct {
	mu        sync.Mutex
	mailboxes map[string]*fakeMailbox
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{mailboxes: make(map[string]*fakeMailbox)}
}

func (d *fakeDialer) mailbox(name string) *fakeMailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	mb, ok := d.mailboxes[name]
	if !ok {
		mb = &fakeMailbox{
			uidValidity: 1,
			messages:    make(map[uint32][]byte),
			seen:        make(map[uint32]bool),
			fetchErr:    make(map[uint32]error),
		}
		d.mailboxes[name] = mb
	}
	return mb
}

func (d *fakeDialer) Dial(_ context.Context, mailbox *models.Mailbox) (interfaces.MailboxSession, error) {
	mb := d.mailbox(mailbox.Name)
	if mb.dialErr != nil {
		return nil, mb.dialErr
	}
	return &fakeSession{mailbox: mb}, nil
}

type fakeSession struct {
	mailbox *fakeMailbox
	closed  bool
}

func (s *fakeSession) Select(_ context.Context, _ string) (uint32, error) {
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	return s.mailbox.uidValidity, nil
}

func (s *fakeSession) SearchUIDsAfter(_ context.Context, lastSeen uint32) ([]uint32, error) {
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	var uids []uint32
	for uid := range s.mailbox.messages {
		if uid > lastSeen {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *fakeSession) FetchRaw(_ context.Context, uid uint32) ([]byte, error) {
	s.mailbox.mu.Lock()
	s.mailbox.fetched = append(s.mailbox.fetched, uid)
	onFetch := s.mailbox.onFetch
	err := s.mailbox.fetchErr[uid]
	raw, ok := s.mailbox.messages[uid]
	s.mailbox.mu.Unlock()

	if onFetch != nil {
		onFetch(uid)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, mierrors.ErrMessageNotFound)
	}
	return raw, nil
}

func (s *fakeSession) MarkSeen(_ context.Context, uid uint32) error {
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	s.mailbox.seen[uid] = true
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []dto.TicketEvent
	panics bool
}

func (n *recordingNotifier) NotifyTicketEvent(_ context.Context, event *dto.TicketEvent) error {
	n.mu.Lock()
	n.events = append(n.events, *event)
	n.mu.Unlock()
	if n.panics {
		panic("notifier exploded")
	}
	return nil
}

func (n *recordingNotifier) Events() []dto.TicketEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dto.TicketEvent(nil), n.events...)
}

// failingLedger fails Append for the listed uids while enabled.
type failingLedger struct {
	interfaces.IngestLogRepository
	mu      sync.Mutex
	failUID map[uint32]bool
}

func (l *failingLedger) Append(ctx context.Context, entry *models.IngestLogEntry) (bool, error) {
	l.mu.Lock()
	fail := l.failUID[entry.UID]
	l.mu.Unlock()
	if fail {
		return false, errors.New("ledger table unavailable")
	}
	return l.IngestLogRepository.Append(ctx, entry)
}

func (l *failingLedger) heal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failUID = nil
}

// failingStorage fails the nth upload.
type failingStorage struct {
	interfaces.StorageService
	mu      sync.Mutex
	uploads int
	failOn  int
	deleted []string
}

func (s *failingStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	s.uploads++
	fail := s.uploads == s.failOn
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.StorageService.Upload(ctx, key, data, contentType)
}

func (s *failingStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()
	return s.StorageService.Delete(ctx, key)
}

// collidingAttachments reports a uniqueness violation that has nothing to do
// with the message itself.
type collidingAttachments struct {
	interfaces.TicketMessageAttachmentRepository
}

func (collidingAttachments) Create(context.Context, *models.TicketMessageAttachment) error {
	return gorm.ErrDuplicatedKey
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	cfg       *config.IngestConfig
	repos     *repository.Repositories
	dialer    *fakeDialer
	notifier  *recordingNotifier
	storage   interfaces.StorageService
	processor *MessageProcessor
	poller    *Poller
	runner    *Runner
	metrics   *metrics.Metrics
}

type harnessOption func(*harness)

func withConfig(fn func(cfg *config.IngestConfig)) harnessOption {
	return func(h *harness) { fn(h.cfg) }
}

func withStorage(fn func(base interfaces.StorageService) interfaces.StorageService) harnessOption {
	return func(h *harness) { h.storage = fn(h.storage) }
}

func withRepositories(fn func(repos *repository.Repositories)) harnessOption {
	return func(h *harness) { fn(h.repos) }
}

func withLedger(fn func(base interfaces.IngestLogRepository) interfaces.IngestLogRepository) harnessOption {
	return func(h *harness) { h.repos.IngestLogRepository = fn(h.repos.IngestLogRepository) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	db := testutil.NewTestDB(t)
	base, err := storage.NewFilesystemStorageService(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:   t,
		ctx: context.Background(),
		db:  db,
		cfg: &config.IngestConfig{
			MarkSeenOnSkip:     true,
			MaxAttachmentBytes: 1 << 20,
		},
		repos:    repository.InitRepositories(db),
		dialer:   newFakeDialer(),
		notifier: &recordingNotifier{},
		storage:  base,
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.cfg.Normalize()

	log := testutil.NewTestLogger()
	ticketService := tickets.NewTicketService(h.repos.TicketRepository, h.repos.RequesterRepository, h.cfg.TicketCodePrefix)
	h.processor = NewMessageProcessor(h.cfg, Dependencies{
		Repositories: h.repos,
		Parser:       parser.NewParser(),
		Authorizer:   authorizer.NewAuthorizer(h.repos.AllowedSenderRepository, h.cfg.AllowUnknownSenders),
		EmailFilter:  email_filter.NewEmailFilterService(),
		Tickets:      ticketService,
		Storage:      h.storage,
		Notifier:     h.notifier,
		Metrics:      h.metrics,
	}, log)
	leases := lease.NewDBLeaseManager(h.repos.MailboxLeaseRepository, h.cfg.LeaseMaxAge)
	h.poller = NewPoller(h.cfg, h.repos, h.dialer, leases, h.processor, ticketService, h.metrics, "test-pod", log)
	h.runner = NewRunner(h.poller, h.repos.MailboxRepository, h.cfg.MaxConcurrentMailboxes, log)

	require.NoError(t, h.repos.AllowedSenderRepository.Create(h.ctx, &models.AllowedSender{
		Type:   enum.AllowedSenderDomain,
		Value:  "customer.com",
		Active: true,
	}))
	return h
}

func (h *harness) addMailbox(name string) *models.Mailbox {
	h.t.Helper()
	mailbox := &models.Mailbox{
		Name:     name,
		Host:     "imap.example.com",
		Port:     993,
		TLS:      true,
		Username: name + "@example.com",
		Password: "secret",
		Folder:   "INBOX",
		Enabled:  true,
	}
	require.NoError(h.t, h.repos.MailboxRepository.SaveMailbox(h.ctx, mailbox))
	h.dialer.mailbox(name)
	return mailbox
}

func (h *harness) run(mailbox *models.Mailbox) (*dto.RunSummary, error) {
	summary, err := h.poller.RunMailbox(h.ctx, mailbox)
	h.processor.WaitNotifications()
	return summary, err
}

func (h *harness) watermark(mailbox string) uint32 {
	h.t.Helper()
	state, err := h.repos.MailboxStateRepository.GetState(h.ctx, mailbox)
	require.NoError(h.t, err)
	return state.LastSeenUID
}

func (h *harness) ledger(mailbox string, uid uint32) *models.IngestLogEntry {
	h.t.Helper()
	entry, err := h.repos.IngestLogRepository.Get(h.ctx, mailbox, uid)
	require.NoError(h.t, err)
	return entry
}

func (h *harness) count(model interface{}) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(model).Count(&n).Error)
	return n
}

type message struct {
	from        string
	subject     string
	messageID   string
	inReplyTo   string
	references  []string
	body        string
	html        string
	attachments map[string]string
}

func (m message) raw() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	b.WriteString("To: support@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", m.subject)
	b.WriteString("Date: " + time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC1123Z) + "\r\n")
	if m.messageID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s>\r\n", m.messageID)
	}
	if m.inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: <%s>\r\n", m.inReplyTo)
	}
	if len(m.references) > 0 {
		refs := make([]string, len(m.references))
		for i, ref := range m.references {
			refs[i] = "<" + ref + ">"
		}
		fmt.Fprintf(&b, "References: %s\r\n", strings.Join(refs, " "))
	}
	b.WriteString("MIME-Version: 1.0\r\n")

	body := m.body
	if body == "" {
		body = "Hello, something is broken."
	}
	if m.html != "" && len(m.attachments) == 0 {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(m.html + "\r\n")
		return []byte(b.String())
	}
	if len(m.attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body + "\r\n")
		return []byte(b.String())
	}

	names := make([]string, 0, len(m.attachments))
	for name := range m.attachments {
		names = append(names, name)
	}
	sort.Strings(names)

	const boundary = "mailintake-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
	for _, name := range names {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: application/octet-stream\r\nContent-Disposition: attachment; filename=%q\r\n\r\n%s\r\n",
			boundary, name, m.attachments[name])
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
