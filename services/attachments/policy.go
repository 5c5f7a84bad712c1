package attachments

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/internal/enum"
	mierrors "github.com/customeros/mailintake/internal/errors"
)

type Rejection struct {
	Filename string
	Reason   enum.AttachmentRejection
}

func (r *Rejection) Error() string {
	return errors.Wrapf(mierrors.ErrAttachmentRejected, "%s: %s", r.Reason, r.Filename).Error()
}

func (r *Rejection) Unwrap() error {
	return mierrors.ErrAttachmentRejected
}

// Policy decides which attachments are kept. A rejection drops only the
// attachment, never the message.
type Policy struct {
	MaxBytes   int64
	denylisted map[string]struct{}
}

func NewPolicy(maxBytes int64, denylistedExtensions []string) *Policy {
	p := &Policy{
		MaxBytes:   maxBytes,
		denylisted: make(map[string]struct{}, len(denylistedExtensions)),
	}
	for _, ext := range denylistedExtensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			p.denylisted[ext] = struct{}{}
		}
	}
	return p
}

// Check returns a *Rejection when the attachment must be dropped.
func (p *Policy) Check(attachment dto.ParsedAttachment) error {
	if ext := Extension(attachment.Filename); ext != "" {
		if _, found := p.denylisted[ext]; found {
			return &Rejection{Filename: attachment.Filename, Reason: enum.AttachmentDeniedExtension}
		}
	}
	if p.MaxBytes > 0 && attachmentSize(attachment) > p.MaxBytes {
		return &Rejection{Filename: attachment.Filename, Reason: enum.AttachmentTooLarge}
	}
	return nil
}

// Extension lowercases the last extension after stripping trailing dots and
// spaces, so "invoice.EXE. " is treated as "exe".
func Extension(filename string) string {
	name := strings.TrimRight(filename, ". \t")
	name = strings.ReplaceAll(name, "\\", "/")
	ext := path.Ext(path.Base(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func attachmentSize(attachment dto.ParsedAttachment) int64 {
	if n := int64(len(attachment.Content)); n > attachment.Size {
		return n
	}
	return attachment.Size
}
