// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
)

// Log levels recorded by Logger.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger recording every entry.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log(LevelFatal, msg, args) }

// Count returns the number of entries logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Store operations that FaultyStore can fail.
const (
	OpCreateFolder = "createFolder"
	OpUpload       = "upload"
	OpUpdate       = "update"
	OpDownload     = "download"
	OpDelete       = "delete"
	OpFind         = "find"
)

// FaultyStore wraps a core.ObjectStore and fails the operations switched on with Fail.
type FaultyStore struct {
	core.ObjectStore

	mu      sync.Mutex
	failing map[string]bool
	calls   map[string]int
}

var _ core.ObjectStore = (*FaultyStore)(nil)

func NewFaultyStore(store core.ObjectStore) *FaultyStore {
	return &FaultyStore{
		ObjectStore: store,
		failing:     make(map[string]bool),
		calls:       make(map[string]int),
	}
}

// Fail makes the given operations return a remote error until Heal is called.
func (s *FaultyStore) Fail(ops ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		s.failing[op] = true
	}
}

func (s *FaultyStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = make(map[string]bool)
}

// Calls returns how many times op was attempted.
func (s *FaultyStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *FaultyStore) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.failing[op] {
		return core.NewRemoteError(op, errors.New("injected failure"))
	}
	return nil
}

func (s *FaultyStore) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := s.check(OpCreateFolder); err != nil {
		return "", err
	}
	return s.ObjectStore.CreateFolder(ctx, name, parentID)
}

func (s *FaultyStore) UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	if err := s.check(OpUpload); err != nil {
		return core.Object{}, err
	}
	return s.ObjectStore.UploadBlob(ctx, r, name, parentID)
}

func (s *FaultyStore) UpdateBlob(ctx context.Context, id string, r io.Reader) error {
	if err := s.check(OpUpdate); err != nil {
		return err
	}
	return s.ObjectStore.UpdateBlob(ctx, id, r)
}

func (s *FaultyStore) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	if err := s.check(OpDownload); err != nil {
		return nil, err
	}
	return s.ObjectStore.DownloadBlob(ctx, id)
}

func (s *FaultyStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.check(OpDelete); err != nil {
		return err
	}
	return s.ObjectStore.DeleteByID(ctx, id)
}

func (s *FaultyStore) FindByNameAndParent(ctx context.Context, name, parentID string) (string, error) {
	if err := s.check(OpFind); err != nil {
		return "", err
	}
	return s.ObjectStore.FindByNameAndParent(ctx, name, parentID)
}

// NewDocumentStore returns a loaded document.Store over objects, without bootstrap accounts.
func NewDocumentStore(t *testing.T, objects core.ObjectStore, logger core.Logger) *document.Store {
	t.Helper()
	store := document.NewStore(objects, logger, document.Options{
		RootFolder:   "ROOT",
		DocumentName: "database.json",
	})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	return store
}

// SeedAccount stores an account directly in the document.
func SeedAccount(t *testing.T, store *document.Store, role, username, fullName, passwordHash string) {
	t.Helper()
	err := store.Update(context.Background(), func(doc *document.Document) error {
		acc := document.Account{PasswordHash: passwordHash, FullName: fullName, Role: role}
		switch role {
		case core.RoleTeacher:
			doc.Admins[username] = acc
		case core.RoleStudent:
			doc.Users[username] = acc
		default:
			return fmt.Errorf("unknown role %q", role)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("SeedAccount() failed: %v", err)
	}
}

// Snapshot returns a deep copy of the current document.
func Snapshot(t *testing.T, store *document.Store) *document.Document {
	t.Helper()
	var snap *document.Document
	err := store.View(context.Background(), func(doc *document.Document) error {
		snap = doc.Clone()
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	return snap
}
