// Package store persists session credentials and the photo cache under
// the client's data directory. Files are TOML; photo blobs live in a
// photos/ subdirectory keyed by escaped username.
package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/finch-chat/finch/internal/api"
)

const (
	credentialsFile = "credentials.toml"
	photoIndexFile  = "photo_index.toml"
	photosDir       = "photos"
)

// Store reads and writes client state below dir.
type Store struct {
	dir string
}

// New builds a Store rooted at dir, creating it as needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// RestoreCredentials loads the persisted session, or nil when none is
// stored. A stored credential without a session key is treated as
// absent rather than surfaced.
func (s *Store) RestoreCredentials() (*api.Credentials, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds api.Credentials
	if err := toml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.AccountID == "" || creds.SessionKey == "" {
		return nil, nil
	}
	return &creds, nil
}

// SaveCredentials persists creds; nil deletes any stored session.
func (s *Store) SaveCredentials(creds *api.Credentials) error {
	path := filepath.Join(s.dir, credentialsFile)
	if creds == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove credentials: %w", err)
		}
		return nil
	}

	data, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

type photoIndex struct {
	Updates map[string]time.Time `toml:"updates"`
}

// LoadPhotoIndex reads the username-to-update-timestamp map, empty when
// none is stored yet.
func (s *Store) LoadPhotoIndex() (map[string]time.Time, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, photoIndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]time.Time{}, nil
		}
		return nil, fmt.Errorf("read photo index: %w", err)
	}

	var idx photoIndex
	if err := toml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse photo index: %w", err)
	}
	if idx.Updates == nil {
		idx.Updates = map[string]time.Time{}
	}
	return idx.Updates, nil
}

// SavePhotoIndex writes the full update map.
func (s *Store) SavePhotoIndex(updates map[string]time.Time) error {
	data, err := toml.Marshal(photoIndex{Updates: updates})
	if err != nil {
		return fmt.Errorf("marshal photo index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, photoIndexFile), data, 0o600); err != nil {
		return fmt.Errorf("write photo index: %w", err)
	}
	return nil
}

// LoadPhoto returns the stored blob, or nil when none exists.
func (s *Store) LoadPhoto(username string) ([]byte, error) {
	data, err := os.ReadFile(s.photoPath(username))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read photo %s: %w", username, err)
	}
	return data, nil
}

// SavePhoto stores the blob for username.
func (s *Store) SavePhoto(username string, data []byte) error {
	dir := filepath.Join(s.dir, photosDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create photos dir: %w", err)
	}
	if err := os.WriteFile(s.photoPath(username), data, 0o600); err != nil {
		return fmt.Errorf("write photo %s: %w", username, err)
	}
	return nil
}

// DeletePhoto removes the stored blob; missing blobs are fine.
func (s *Store) DeletePhoto(username string) error {
	if err := os.Remove(s.photoPath(username)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo %s: %w", username, err)
	}
	return nil
}

func (s *Store) photoPath(username string) string {
	return filepath.Join(s.dir, photosDir, url.PathEscape(username))
}
