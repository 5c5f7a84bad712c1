package authorizer

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/net/idna"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

type Rule string

const (
	RuleEmail          Rule = "email"
	RuleDomain         Rule = "domain"
	RuleUnknownAllowed Rule = "unknown_allowed"
	RuleNone           Rule = "none"
)

type Decision struct {
	Allowed bool
	Rule    Rule
	// Address is the normalised sender address the rules were evaluated against.
	Address     string
	Domain      string
	ValidSyntax bool
	Entry       *models.AllowedSender
	// UserID is the user bound to the matched allow-list entry, if any.
	UserID *string
}

type Authorizer struct {
	repository          interfaces.AllowedSenderRepository
	allowUnknownSenders bool
}

func NewAuthorizer(repository interfaces.AllowedSenderRepository, allowUnknownSenders bool) *Authorizer {
	return &Authorizer{repository: repository, allowUnknownSenders: allowUnknownSenders}
}

// Authorize applies the allow-list rules in order: exact address, then domain,
// then the allow-unknown-senders switch.
func (a *Authorizer) Authorize(ctx context.Context, address string) (*Decision, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Authorizer.Authorize")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	decision := &Decision{Rule: RuleNone}
	decision.Address, decision.Domain = NormalizeAddress(address)
	decision.ValidSyntax = mailvalidate.ValidateEmailSyntax(decision.Address).IsValid
	span.SetTag("sender.domain", decision.Domain)
	span.SetTag("sender.valid-syntax", decision.ValidSyntax)

	if decision.Domain != "" {
		local := decision.Address[:strings.LastIndex(decision.Address, "@")]
		for _, domain := range domainForms(decision.Domain) {
			entry, err := a.repository.FindActive(ctx, enum.AllowedSenderEmail, local+"@"+domain)
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			if entry != nil {
				return a.allow(span, decision, RuleEmail, entry), nil
			}
		}

		for _, domain := range domainForms(decision.Domain) {
			entry, err := a.repository.FindActive(ctx, enum.AllowedSenderDomain, domain)
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			if entry != nil {
				return a.allow(span, decision, RuleDomain, entry), nil
			}
		}
	}

	if a.allowUnknownSenders {
		return a.allow(span, decision, RuleUnknownAllowed, nil), nil
	}

	span.SetTag("allowed", false)
	return decision, nil
}

func (a *Authorizer) allow(span opentracing.Span, decision *Decision, rule Rule, entry *models.AllowedSender) *Decision {
	decision.Allowed = true
	decision.Rule = rule
	decision.Entry = entry
	if entry != nil {
		decision.UserID = entry.UserID
		tracing.TagEntity(span, entry.ID)
	}
	span.SetTag("allowed", true)
	span.SetTag("rule", string(rule))
	return decision
}

// NormalizeAddress lowercases and trims an address and converts its domain to
// the ASCII form. It returns an empty domain for addresses without one.
func NormalizeAddress(address string) (string, string) {
	address = strings.ToLower(utils.ExtractAddress(address))
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return address, ""
	}

	local, domain := address[:at], strings.TrimSuffix(address[at+1:], ".")
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil && ascii != "" {
		domain = strings.ToLower(ascii)
	}

	normalized := local + "@" + domain
	if validation := mailvalidate.ValidateEmailSyntax(normalized); validation.IsValid && validation.CleanEmail != "" {
		if cleaned := strings.ToLower(validation.CleanEmail); strings.HasSuffix(cleaned, "@"+domain) {
			normalized = cleaned
		}
	}
	return normalized, domain
}

// domainForms returns the ASCII domain plus its unicode form when they differ,
// so allow-list entries stored either way match.
func domainForms(domain string) []string {
	forms := []string{domain}
	if unicode, err := idna.ToUnicode(domain); err == nil && unicode != domain {
		forms = append(forms, unicode)
	}
	return forms
}
