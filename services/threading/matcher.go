package threading

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
)

// Matcher resolves an inbound email to an existing ticket id, or "" when it
// has no opinion.
type Matcher interface {
	Name() string
	Match(ctx context.Context, email *dto.ParsedEmail) (string, error)
}

// SubjectCodeMatcher looks for a bracketed ticket code such as [TCK-7K3M9Q2P].
type SubjectCodeMatcher struct {
	tickets interfaces.TicketService
	pattern *regexp.Regexp
}

func NewSubjectCodeMatcher(tickets interfaces.TicketService, prefix string) *SubjectCodeMatcher {
	pattern := regexp.MustCompile(fmt.Sprintf(`(?i)\[(%s-[A-Z0-9]{4,16})\]`, regexp.QuoteMeta(prefix)))
	return &SubjectCodeMatcher{tickets: tickets, pattern: pattern}
}

func (m *SubjectCodeMatcher) Name() string {
	return "subject_code"
}

func (m *SubjectCodeMatcher) Match(ctx context.Context, email *dto.ParsedEmail) (string, error) {
	for _, code := range m.Codes(email.Subject) {
		ticket, err := m.tickets.GetTicketByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if ticket != nil {
			return ticket.ID, nil
		}
	}
	return "", nil
}

// Codes returns the upper-cased ticket codes found in subject, in order.
func (m *SubjectCodeMatcher) Codes(subject string) []string {
	var codes []string
	for _, match := range m.pattern.FindAllStringSubmatch(subject, -1) {
		codes = append(codes, strings.ToUpper(match[1]))
	}
	return codes
}

// HeaderChainMatcher follows In-Reply-To and References to stored ticket messages.
type HeaderChainMatcher struct {
	tickets  interfaces.TicketService
	messages interfaces.TicketMessageRepository
}

func NewHeaderChainMatcher(tickets interfaces.TicketService, messages interfaces.TicketMessageRepository) *HeaderChainMatcher {
	return &HeaderChainMatcher{tickets: tickets, messages: messages}
}

func (m *HeaderChainMatcher) Name() string {
	return "header_chain"
}

func (m *HeaderChainMatcher) Match(ctx context.Context, email *dto.ParsedEmail) (string, error) {
	ids := email.ThreadIdentifiers()
	if len(ids) == 0 {
		return "", nil
	}

	ticketIDs, err := m.messages.TicketIDsByMessageIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	switch len(ticketIDs) {
	case 0:
		return "", nil
	case 1:
		return ticketIDs[0], nil
	}

	// the chain touches several tickets, join the most recently active one
	ticket, err := m.tickets.MostRecentlyUpdated(ctx, ticketIDs)
	if err != nil || ticket == nil {
		return "", err
	}
	return ticket.ID, nil
}

// RunChainMatcher remembers every identifier handled during the current run,
// so replies arriving in the same batch as an unknown root stay together.
type RunChainMatcher struct {
	mu     sync.Mutex
	chains map[string]string
}

func NewRunChainMatcher() *RunChainMatcher {
	return &RunChainMatcher{chains: make(map[string]string)}
}

func (m *RunChainMatcher) Name() string {
	return "run_chain"
}

func (m *RunChainMatcher) Match(_ context.Context, email *dto.ParsedEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range email.ThreadIdentifiers() {
		if ticketID, ok := m.chains[id]; ok {
			return ticketID, nil
		}
	}
	return "", nil
}

// Record maps the message id and all its thread identifiers to ticketID.
// Identifiers already mapped keep their first ticket.
func (m *RunChainMatcher) Record(email *dto.ParsedEmail, ticketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := append([]string{email.MessageID}, email.ThreadIdentifiers()...)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := m.chains[id]; !ok {
			m.chains[id] = ticketID
		}
	}
}
