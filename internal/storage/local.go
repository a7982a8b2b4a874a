package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidKey  = errors.New("invalid object key")
	ErrTooLarge    = errors.New("object exceeds the granted size")
	ErrContentType = errors.New("content type does not match the grant")
)

// UploadCredential lets a client upload one object directly.
type UploadCredential struct {
	URL       string    `json:"uploadUrl"`
	Token     string    `json:"uploadToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ObjectStore is the media blob store.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string, maxBytes int64) (*UploadCredential, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, r io.Reader, grant *Grant) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Verify(token, key string, op Operation) (*Grant, error)
}

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	Root        string
	PublicURL   string
	Secret      string
	UploadTTL   time.Duration
	DownloadTTL time.Duration
}

// LocalStore keeps objects on the local filesystem and serves them through the
// API's /storage routes.
type LocalStore struct {
	root        string
	publicURL   string
	signer      *Signer
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(opts LocalOptions) (*LocalStore, error) {
	if opts.Root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = 15 * time.Minute
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = time.Hour
	}
	return &LocalStore{
		root:        opts.Root,
		publicURL:   strings.TrimRight(opts.PublicURL, "/"),
		signer:      NewSigner(opts.Secret),
		uploadTTL:   opts.UploadTTL,
		downloadTTL: opts.DownloadTTL,
	}, nil
}

// ValidKey reports whether key is a relative slash path with no traversal.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func (s *LocalStore) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStore) PresignUpload(_ context.Context, key, contentType string, maxBytes int64) (*UploadCredential, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	token, exp, err := s.signer.Sign(Grant{Key: key, Op: OpUpload, ContentType: contentType, MaxBytes: maxBytes}, s.uploadTTL)
	if err != nil {
		return nil, err
	}
	return &UploadCredential{
		URL:       s.publicURL + "/storage/upload/" + key,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (s *LocalStore) PresignDownload(_ context.Context, key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	token, _, err := s.signer.Sign(Grant{Key: key, Op: OpDownload}, s.downloadTTL)
	if err != nil {
		return "", err
	}
	return s.publicURL + "/storage/object/" + key + "?token=" + url.QueryEscape(token), nil
}

func (s *LocalStore) Verify(token, key string, op Operation) (*Grant, error) {
	return s.signer.Verify(token, key, op)
}

// Put streams r to key. Writes go to a temp file first so a rejected upload
// never replaces an existing object.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, grant *Grant) (int64, error) {
	full, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src := r
	if grant != nil && grant.MaxBytes > 0 {
		src = io.LimitReader(r, grant.MaxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write object: %w", err)
	}
	if grant != nil && grant.MaxBytes > 0 && n > grant.MaxBytes {
		return 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, fmt.Errorf("commit object: %w", err)
	}
	return n, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat object: %w", err)
	}
	return f, &ObjectInfo{Key: key, Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
