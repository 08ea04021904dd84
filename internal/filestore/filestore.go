// Package filestore stores and serves the PDF revisions an envelope
// accumulates as recipients sign it (spec.md §6 FILES_DIR, §4 "fresh UUID
// filename is allocated on each new revision"), and gates read access with
// an HMAC-signed, time-limited URL (spec.md §6 `GET /files/:path?key=…`).
//
// The default backend is local disk; an optional S3-compatible backend is
// selected when configuration names a bucket, grounded on
// rendis-doc-assembly's storage/s3 adapter.
package filestore

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/esignhq/esign/internal/esignerr"
)

// Store persists file revisions and grants time-limited signed access to
// them.
type Store interface {
	// Put writes data under a freshly generated revision name and returns
	// the path to use in Sign/URL and future Get calls.
	Put(ctx context.Context, data []byte) (path string, err error)
	// Get reads back the bytes stored at path.
	Get(ctx context.Context, path string) ([]byte, error)
}

// LocalStore is the default FILES_DIR-backed Store (spec.md §6).
type LocalStore struct {
	Dir string
}

// NewLocalStore returns a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, esignerr.New(esignerr.StorageError, "filestore.NewLocalStore", err)
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) Put(_ context.Context, data []byte) (string, error) {
	name := uuid.NewString() + ".pdf"
	full := filepath.Join(s.Dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", esignerr.New(esignerr.StorageError, "filestore.LocalStore.Put", err)
	}
	return name, nil
}

func (s *LocalStore) Get(_ context.Context, path string) ([]byte, error) {
	clean := filepath.Clean(string(filepath.Separator) + path)[1:]
	data, err := os.ReadFile(filepath.Join(s.Dir, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, esignerr.New(esignerr.NotFound, "filestore.LocalStore.Get", err)
		}
		return nil, esignerr.New(esignerr.StorageError, "filestore.LocalStore.Get", err)
	}
	return data, nil
}

// Signer mints and verifies the `?key=` query parameter spec.md §6
// describes: `expiry_unix_seconds;base64url(HMAC-SHA-512(files_key,
// base64url(path)+";"+expiry))`, with a fixed validity window.
type Signer struct {
	Key    []byte
	Window time.Duration
}

// NewSigner returns a Signer using key (FILES_KEY) with spec.md §8's
// 5-minute validity window.
func NewSigner(key []byte) *Signer {
	return &Signer{Key: key, Window: 5 * time.Minute}
}

// Sign returns the `key` query value granting access to path, valid from
// now for s.Window.
func (s *Signer) Sign(path string, now time.Time) string {
	expiry := now.Add(s.Window).Unix()
	mac := s.mac(path, expiry)
	return fmt.Sprintf("%d;%s", expiry, base64.URLEncoding.EncodeToString(mac))
}

// Verify reports whether key is a valid, unexpired signature for path at
// clock time now.
func (s *Signer) Verify(path, key string, now time.Time) error {
	parts := strings.SplitN(key, ";", 2)
	if len(parts) != 2 {
		return esignerr.Errorf(esignerr.AuthFailure, "filestore.Signer.Verify", "malformed key")
	}
	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return esignerr.New(esignerr.AuthFailure, "filestore.Signer.Verify", err)
	}
	if now.Unix() > expiry {
		return esignerr.Errorf(esignerr.Expired, "filestore.Signer.Verify", "link expired at %d", expiry)
	}
	got, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return esignerr.New(esignerr.AuthFailure, "filestore.Signer.Verify", err)
	}
	want := s.mac(path, expiry)
	if !hmac.Equal(got, want) {
		return esignerr.Errorf(esignerr.AuthFailure, "filestore.Signer.Verify", "bad signature")
	}
	return nil
}

func (s *Signer) mac(path string, expiry int64) []byte {
	encodedPath := base64.URLEncoding.EncodeToString([]byte(path))
	msg := fmt.Sprintf("%s;%d", encodedPath, expiry)
	h := hmac.New(sha512.New, s.Key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}
