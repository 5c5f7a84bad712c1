package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	ingesterrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/utils"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrNoHeaders    = errors.New("message has no header block")
)

var bracketedID = regexp.MustCompile(`<([^<>]*)>`)

type parser struct{}

func NewParser() interfaces.MessageParser {
	return &parser{}
}

// Parse decodes a raw RFC 5322 message. Only an unreadable envelope is an
// error; part level decoding problems are returned as warnings.
func (p *parser) Parse(raw []byte) (*dto.ParsedEmail, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ingesterrors.NewParseError(ErrEmptyMessage)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, ingesterrors.NewParseError(errors.Wrap(err, "failed to read envelope"))
	}
	if len(env.GetHeaderKeys()) == 0 {
		return nil, ingesterrors.NewParseError(ErrNoHeaders)
	}

	email := &dto.ParsedEmail{
		MessageID:   firstMessageID(env.GetHeader("Message-ID")),
		InReplyTo:   firstMessageID(env.GetHeader("In-Reply-To")),
		References:  parseMessageIDs(env.GetHeader("References")),
		Subject:     clean(env.GetHeader("Subject")),
		TextBody:    clean(env.Text),
		HTMLBody:    clean(env.HTML),
		RawHeaders:  headers(env),
		Attachments: attachments(env),
	}
	email.From, email.FromName = sender(env)

	for _, partErr := range env.Errors {
		email.Warnings = append(email.Warnings, clean(partErr.Error()))
	}
	return email, nil
}

// clean replaces invalid UTF-8 with U+FFFD and applies NFC normalisation.
func clean(s string) string {
	if s == "" {
		return s
	}
	return norm.NFC.String(strings.ToValidUTF8(s, "\uFFFD"))
}

func sender(env *enmime.Envelope) (string, string) {
	for _, header := range []string{"From", "Sender"} {
		addresses, err := env.AddressList(header)
		if err != nil || len(addresses) == 0 {
			continue
		}
		return clean(strings.TrimSpace(addresses[0].Address)), clean(strings.TrimSpace(addresses[0].Name))
	}

	// unparsable From header, keep whatever address-like token it carries
	from := clean(env.GetHeader("From"))
	return utils.ExtractAddress(from), ""
}

func headers(env *enmime.Envelope) map[string][]string {
	keys := env.GetHeaderKeys()
	result := make(map[string][]string, len(keys))
	for _, key := range keys {
		values := env.GetHeaderValues(key)
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			cleaned = append(cleaned, clean(v))
		}
		result[key] = cleaned
	}
	return result
}

func attachments(env *enmime.Envelope) []dto.ParsedAttachment {
	var result []dto.ParsedAttachment
	add := func(parts []*enmime.Part, inline bool) {
		for _, part := range parts {
			if part == nil || part.FileName == "" {
				continue
			}
			result = append(result, dto.ParsedAttachment{
				Filename:    clean(part.FileName),
				ContentType: part.ContentType,
				Size:        int64(len(part.Content)),
				Content:     part.Content,
				ContentID:   utils.NormalizeMessageID(part.ContentID),
				Inline:      inline || strings.EqualFold(part.Disposition, "inline"),
			})
		}
	}

	add(env.Attachments, false)
	add(env.Inlines, true)
	add(env.OtherParts, false)
	return result
}

// parseMessageIDs extracts message ids in header order, without brackets and duplicates.
func parseMessageIDs(header string) []string {
	header = clean(header)
	if strings.TrimSpace(header) == "" {
		return nil
	}

	var candidates []string
	if matches := bracketedID.FindAllStringSubmatch(header, -1); len(matches) > 0 {
		for _, m := range matches {
			candidates = append(candidates, m[1])
		}
	} else {
		candidates = strings.FieldsFunc(header, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
		})
	}

	var ids []string
	for _, candidate := range candidates {
		if id := validMessageID(candidate); id != "" {
			ids = append(ids, id)
		}
	}
	return utils.UniqueStrings(ids)
}

func firstMessageID(header string) string {
	if ids := parseMessageIDs(header); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// validMessageID returns the bare id, or empty when it is not shaped like local@domain.
func validMessageID(id string) string {
	id = utils.NormalizeMessageID(id)
	if id == "" || strings.ContainsAny(id, " \t\r\n<>") {
		return ""
	}
	at := strings.LastIndex(id, "@")
	if at <= 0 || at == len(id)-1 {
		return ""
	}
	return id
}
