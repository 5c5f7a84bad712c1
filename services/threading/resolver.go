package threading

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/tracing"
)

type Resolution struct {
	TicketID string
	Matcher  string
}

func (r *Resolution) Matched() bool {
	return r != nil && r.TicketID != ""
}

// Resolver evaluates matchers in order; the first match wins. The remaining
// matchers still run so that disagreements can be reported.
type Resolver struct {
	matchers []Matcher
	runChain *RunChainMatcher
	log      logger.Logger
}

func NewResolver(log logger.Logger, runChain *RunChainMatcher, matchers ...Matcher) *Resolver {
	return &Resolver{matchers: matchers, runChain: runChain, log: log}
}

// NewDefaultResolver builds the subject code, header chain and run chain
// matchers with a fresh per-run cache.
func NewDefaultResolver(log logger.Logger, tickets interfaces.TicketService, messages interfaces.TicketMessageRepository, codePrefix string) *Resolver {
	runChain := NewRunChainMatcher()
	return NewResolver(log, runChain,
		NewSubjectCodeMatcher(tickets, codePrefix),
		NewHeaderChainMatcher(tickets, messages),
		runChain,
	)
}

func (r *Resolver) Resolve(ctx context.Context, email *dto.ParsedEmail) (*Resolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Resolver.Resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	resolution := &Resolution{}
	for _, matcher := range r.matchers {
		ticketID, err := matcher.Match(ctx, email)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if ticketID == "" {
			continue
		}
		if !resolution.Matched() {
			resolution.TicketID = ticketID
			resolution.Matcher = matcher.Name()
			continue
		}
		if ticketID != resolution.TicketID {
			r.log.Warnf("thread matchers disagree for message %q: %s chose %s, %s chose %s; keeping %s",
				email.MessageID, resolution.Matcher, resolution.TicketID, matcher.Name(), ticketID, resolution.TicketID)
			span.LogKV("event", "matcher disagreement", "matcher", matcher.Name(), "ticket", ticketID)
		}
	}

	if resolution.Matched() {
		span.SetTag("matcher", resolution.Matcher)
		tracing.TagEntity(span, resolution.TicketID)
	}
	return resolution, nil
}

// Record feeds a committed message into the per-run chain cache.
func (r *Resolver) Record(email *dto.ParsedEmail, ticketID string) {
	if r.runChain != nil && ticketID != "" {
		r.runChain.Record(email, ticketID)
	}
}
