package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

const maxFilenameLength = 200

// Store uploads accepted attachments and builds their rows. It remembers every
// key it wrote so a failed transaction can take the uploads back.
type Store struct {
	storage  interfaces.StorageService
	uploaded []string
}

func NewStore(storage interfaces.StorageService) *Store {
	return &Store{storage: storage}
}

// Save uploads one attachment under the ticket message and returns the row to
// persist. The row is not written to the database here.
func (s *Store) Save(ctx context.Context, ticketID, ticketMessageID string, attachment dto.ParsedAttachment) (*models.TicketMessageAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentStore.Save")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	row := &models.TicketMessageAttachment{
		ID:              utils.GenerateNanoIDWithPrefix("file", 12),
		TicketMessageID: ticketMessageID,
		Filename:        SanitizeFilename(attachment.Filename, attachment.ContentType),
		DeclaredType:    attachment.ContentType,
		MimeType:        mimetype.Detect(attachment.Content).String(),
		Size:            int64(len(attachment.Content)),
		ContentID:       attachment.ContentID,
		Inline:          attachment.Inline,
		StorageService:  s.storage.Name(),
		ContentHash:     ContentHash(attachment.Content),
	}
	row.StoragePath = StoragePath(ticketID, ticketMessageID, row.ID, row.Filename)
	span.SetTag("storage.path", row.StoragePath)

	if err := s.storage.Upload(ctx, row.StoragePath, attachment.Content, row.MimeType); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.uploaded = append(s.uploaded, row.StoragePath)
	return row, nil
}

// Uploaded lists the keys written so far.
func (s *Store) Uploaded() []string {
	return append([]string(nil), s.uploaded...)
}

// Rollback deletes every uploaded key, best effort. It returns the keys that
// could not be removed.
func (s *Store) Rollback(ctx context.Context) []string {
	var leftover []string
	for _, key := range s.uploaded {
		if err := s.storage.Delete(ctx, key); err != nil {
			leftover = append(leftover, key)
		}
	}
	s.uploaded = nil
	return leftover
}

func StoragePath(ticketID, ticketMessageID, attachmentID, filename string) string {
	return path.Join("tickets", ticketID, "messages", ticketMessageID, attachmentID, filename)
}

func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SanitizeFilename keeps the base name, replaces path separators and control
// characters and falls back to a name derived from the content type.
func SanitizeFilename(filename, contentType string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return '_'
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" || name == "." || name == ".." {
		name = fmt.Sprintf("attachment.%s", utils.GetFileExtensionFromContentType(contentType))
	}
	if runes := []rune(name); len(runes) > maxFilenameLength {
		ext := path.Ext(name)
		if len([]rune(ext)) >= maxFilenameLength {
			ext = ""
		}
		name = string(runes[:maxFilenameLength-len([]rune(ext))]) + ext
	}
	return name
}
