package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/tracing"
)

var (
	ErrInvalidKey    = errors.New("invalid storage key")
	ErrObjectExists  = errors.New("storage object already exists")
	ErrObjectMissing = errors.New("storage object not found")
)

// FilesystemStorageService writes attachments below a root directory. Objects
// are write-once: uploading an existing key fails instead of overwriting it.
type FilesystemStorageService struct {
	root string
}

func NewFilesystemStorageService(root string) (interfaces.StorageService, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.Wrap(ErrInvalidKey, "empty storage root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolve storage root")
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrap(err, "create storage root")
	}
	return &FilesystemStorageService{root: abs}, nil
}

func (s *FilesystemStorageService) Name() string {
	return string(enum.StorageFilesystem)
}

func (s *FilesystemStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FilesystemStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	path, err := s.resolve(key)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "create object directory")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if os.IsExist(err) {
			err = errors.Wrap(ErrObjectExists, key)
		}
		tracing.TraceErr(span, err)
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "write object")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "close object")
	}
	return nil
}

func (s *FilesystemStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FilesystemStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	path, err := s.resolve(key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = errors.Wrap(ErrObjectMissing, key)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return data, nil
}

// Delete is idempotent; a missing object is not an error.
func (s *FilesystemStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FilesystemStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	path, err := s.resolve(key)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *FilesystemStorageService) resolve(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.Wrap(ErrInvalidKey, key)
	}
	return path, nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.ContainsRune(key, 0) {
		return errors.Wrap(ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return errors.Wrap(ErrInvalidKey, key)
		}
	}
	return nil
}
