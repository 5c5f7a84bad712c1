package email_filter

import (
	"context"
	"net/textproto"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

type emailFilterService struct{}

func NewEmailFilterService() interfaces.EmailFilterService {
	return &emailFilterService{}
}

// emailHeaders is the subset of headers the classification rules look at.
type emailHeaders struct {
	XFailedRecipients  []string
	ContentDescription string
	ReturnPath         string
	ReturnPathExists   bool
	ReplyTo            string
	ReplyToExists      bool
	ForwardedFor       string
	XAutoreply         string
	XAutoresponse      string
	AutoSubmitted      string
	XLoop              bool
	Precedence         string
	ListUnsubscribe    bool
	Sender             string
}

func newEmailHeaders(raw map[string][]string) *emailHeaders {
	h := textproto.MIMEHeader{}
	for key, values := range raw {
		for _, v := range values {
			h.Add(key, v)
		}
	}
	_, returnPathExists := h[textproto.CanonicalMIMEHeaderKey("Return-Path")]
	_, replyToExists := h[textproto.CanonicalMIMEHeaderKey("Reply-To")]

	return &emailHeaders{
		XFailedRecipients:  h.Values("X-Failed-Recipients"),
		ContentDescription: h.Get("Content-Description"),
		ReturnPath:         utils.ExtractAddress(h.Get("Return-Path")),
		ReturnPathExists:   returnPathExists,
		ReplyTo:            utils.ExtractAddress(h.Get("Reply-To")),
		ReplyToExists:      replyToExists,
		ForwardedFor:       h.Get("X-Forwarded-For"),
		XAutoreply:         h.Get("X-Autoreply"),
		XAutoresponse:      h.Get("X-Autorespond"),
		AutoSubmitted:      h.Get("Auto-Submitted"),
		XLoop:              h.Get("X-Loop") != "",
		Precedence:         h.Get("Precedence"),
		ListUnsubscribe:    h.Get("List-Unsubscribe") != "",
		Sender:             utils.ExtractAddress(h.Get("Sender")),
	}
}

func (s *emailFilterService) Classify(ctx context.Context, email *dto.ParsedEmail) (enum.EmailClassification, string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailFilterService.Classify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	classification, reason := s.classify(email)
	span.SetTag("classification", classification.String())
	if reason != "" {
		span.SetTag("classification.reason", reason)
	}
	return classification, reason
}

func (s *emailFilterService) classify(email *dto.ParsedEmail) (enum.EmailClassification, string) {
	headers := newEmailHeaders(email.RawHeaders)
	from := strings.ToLower(email.From)

	if ok, reason := s.isBounceNotification(headers, email.Subject, from); ok {
		return enum.EmailBounceNotification, reason
	}
	if ok, reason := s.isAutoresponder(headers); ok {
		return enum.EmailAutoResponder, reason
	}
	if ok, reason := s.isBulkEmail(headers, from); ok {
		return enum.EmailBulk, reason
	}
	return enum.EmailOK, ""
}

func (s *emailFilterService) isBulkEmail(headers *emailHeaders, from string) (bool, string) {
	matchReplyTo := strings.EqualFold(headers.ReplyTo, from)

	if headers.ForwardedFor == "" {
		switch {
		case headers.ReplyToExists && !matchReplyTo:
			return true, "REPLY-TO != FROM"
		case headers.ReturnPathExists && headers.ReturnPath == "":
			return true, "RETURN-PATH header is empty"
		case headers.ReturnPathExists && !strings.Contains(strings.ToLower(headers.ReturnPath), from):
			return true, "RETURN-PATH != FROM"
		}
	}

	switch {
	case headers.ListUnsubscribe:
		return true, "UNSUBSCRIBE header present"
	case strings.EqualFold(headers.Precedence, "bulk") || strings.EqualFold(headers.Precedence, "list"):
		return true, "PRECEDENCE: BULK header present"
	case headers.Sender != "" && !strings.EqualFold(headers.Sender, from):
		return true, "SENDER != FROM"
	default:
		return s.mailsherpaChecks(from)
	}
}

func (s *emailFilterService) mailsherpaChecks(from string) (bool, string) {
	if from == "" {
		return true, "FROM is empty"
	}
	syntaxValidation := mailvalidate.ValidateEmailSyntax(from)
	if syntaxValidation.IsSystemGenerated {
		return true, "FROM is system generated"
	}
	return false, ""
}

func (s *emailFilterService) isAutoresponder(headers *emailHeaders) (bool, string) {
	switch {
	case headers.XAutoreply != "":
		return true, "X-AUTOREPLY header present"
	case headers.XAutoresponse != "":
		return true, "X-AUTORESPOND header present"
	case headers.AutoSubmitted != "" && !strings.EqualFold(headers.AutoSubmitted, "no"):
		return true, "AUTO-SUBMITTED header present"
	case headers.XLoop:
		return true, "X-LOOP header present"
	case strings.EqualFold(headers.Precedence, "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY header present"
	default:
		return false, ""
	}
}

func (s *emailFilterService) isBounceNotification(headers *emailHeaders, subject, from string) (bool, string) {
	switch {
	case len(headers.XFailedRecipients) > 0:
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.EqualFold(headers.ContentDescription, "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(headers.ReturnPath):
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

var bounceSubjectKeywords = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjectKeywords {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}
