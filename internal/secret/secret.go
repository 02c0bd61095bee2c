// Package secret resolves the shared bearer token for the RPC endpoints.
//
// Lookup order: an explicit override (usually TIMERS_RPC_SECRET), the OS
// keyring, then a 0600 file in the config directory. When none holds a
// token a new one is generated and stored in the keyring, falling back to
// the file when no keyring service is available.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
)

const (
	fileName = "rpc.secret"
	fileMode = 0o600
)

// Source says where a resolved token came from.
type Source string

const (
	SourceOverride  Source = "override"
	SourceKeyring   Source = "keyring"
	SourceFile      Source = "file"
	SourceGenerated Source = "generated"
)

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

// Store reads and writes the token.
type Store struct {
	Service string
	User    string
	fs      afero.Fs
	dir     string
	log     logger.Logger
}

// New returns a Store keyed by service/"rpc" in the keyring with its file
// fallback under dir.
func New(fs afero.Fs, dir, service string, l logger.Logger) *Store {
	return &Store{Service: service, User: "rpc", fs: fs, dir: dir, log: logger.OrNop(l)}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fileName)
}

// Resolve returns the token and its source.
func (s *Store) Resolve(override string) (string, Source, error) {
	if v := strings.TrimSpace(override); v != "" {
		return v, SourceOverride, nil
	}
	if v, err := keyringGet(s.Service, s.User); err == nil && v != "" {
		return v, SourceKeyring, nil
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		s.log.Debug("keyring unavailable: %v", err)
	}
	if v, err := s.readFile(); err == nil {
		return v, SourceFile, nil
	}
	v, err := s.Rotate()
	if err != nil {
		return "", "", err
	}
	return v, SourceGenerated, nil
}

func (s *Store) readFile() (string, error) {
	data, err := afero.ReadFile(s.fs, s.path())
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%s is empty", s.path())
	}
	return v, nil
}

// Rotate generates and stores a new token, replacing any existing one.
func (s *Store) Rotate() (string, error) {
	buf := make([]byte, 32)
	if _, err := randRead(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	v := hex.EncodeToString(buf)
	err := keyringSet(s.Service, s.User, v)
	if err == nil {
		_ = s.fs.Remove(s.path())
		return v, nil
	}
	s.log.Warning("keyring unavailable, storing rpc secret in %s: %v", s.path(), err)
	if err := s.writeFile(v); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) writeFile(v string) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := s.path() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(v), fileMode); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path()); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename secret file: %w", err)
	}
	return nil
}

// Delete removes the token from both the keyring and the file.
func (s *Store) Delete() error {
	kerr := keyringDelete(s.Service, s.User)
	if errors.Is(kerr, keyring.ErrNotFound) {
		kerr = nil
	}
	ferr := s.fs.Remove(s.path())
	if errors.Is(ferr, afero.ErrFileNotFound) {
		ferr = nil
	}
	return errors.Join(kerr, ferr)
}
