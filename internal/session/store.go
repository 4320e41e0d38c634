package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

// State is the client state retained between runs.
type State struct {
	Token     string            `yaml:"token,omitempty"`
	User      *models.User      `yaml:"user,omitempty"`
	Workspace *models.Workspace `yaml:"workspace,omitempty"`
}

// Store persists State.
type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps State in a YAML file guarded by an advisory lock, so
// concurrent leadwatch processes never interleave writes.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Load reads the state file. A missing file is an empty state.
func (s *FileStore) Load() (State, error) {
	if err := s.ensureDir(); err != nil {
		return State{}, err
	}
	if err := s.lock.RLock(); err != nil {
		return State{}, fmt.Errorf("lock state file: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return st, nil
}

// Save replaces the state file atomically.
func (s *FileStore) Save(st State) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer s.lock.Unlock()

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Clear removes the state file.
func (s *FileStore) Clear() error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return nil
}

// KeyringService groups leadwatch secrets in the OS keychain.
const KeyringService = "leadwatch"

// KeyringStore keeps the token in the OS keychain and everything else in a
// FileStore.
type KeyringStore struct {
	file    *FileStore
	account string
}

// NewKeyringStore stores the token under account, typically the API URL.
func NewKeyringStore(file *FileStore, account string) *KeyringStore {
	return &KeyringStore{file: file, account: account}
}

// Load implements Store.
func (s *KeyringStore) Load() (State, error) {
	st, err := s.file.Load()
	if err != nil {
		return State{}, err
	}
	token, err := keyring.Get(KeyringService, s.account)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		st.Token = ""
	case err != nil:
		return State{}, fmt.Errorf("read token from keyring: %w", err)
	default:
		st.Token = strings.TrimSpace(token)
	}
	return st, nil
}

// Save implements Store.
func (s *KeyringStore) Save(st State) error {
	if st.Token == "" {
		if err := s.deleteToken(); err != nil {
			return err
		}
	} else if err := keyring.Set(KeyringService, s.account, st.Token); err != nil {
		return fmt.Errorf("store token in keyring: %w", err)
	}
	st.Token = ""
	return s.file.Save(st)
}

// Clear implements Store.
func (s *KeyringStore) Clear() error {
	if err := s.deleteToken(); err != nil {
		return err
	}
	return s.file.Clear()
}

func (s *KeyringStore) deleteToken() error {
	if err := keyring.Delete(KeyringService, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete token from keyring: %w", err)
	}
	return nil
}
