package dto

// ParsedEmail is the normalized envelope produced by the message parser.
// Identifiers are stored without angle brackets; an absent or malformed
// Message-ID is the empty string.
type ParsedEmail struct {
	MessageID  string
	InReplyTo  string
	References []string

	From     string
	FromName string
	Subject  string

	TextBody string
	HTMLBody string

	RawHeaders  map[string][]string
	Attachments []ParsedAttachment

	// Warnings are non fatal decoding problems reported while parsing
	Warnings []string
}

type ParsedAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
	ContentID   string
	Inline      bool
}

// PreferredBody returns the html body when present, otherwise the text body.
func (e *ParsedEmail) PreferredBody() string {
	if e.HTMLBody != "" {
		return e.HTMLBody
	}
	return e.TextBody
}

// ThreadIdentifiers returns in-reply-to followed by the reference chain from
// newest to oldest, without duplicates.
func (e *ParsedEmail) ThreadIdentifiers() []string {
	ids := make([]string, 0, len(e.References)+1)
	seen := make(map[string]struct{}, len(e.References)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(e.InReplyTo)
	for i := len(e.References) - 1; i >= 0; i-- {
		add(e.References[i])
	}
	return ids
}
