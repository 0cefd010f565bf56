package document

import (
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

type (
	// Seeder adds the bootstrap accounts to a fresh Document.
	Seeder func(doc *Document) error

	Options struct {
		RootFolder   string
		DocumentName string
		// StrictLoad makes Load fail instead of bootstrapping when the remote document cannot be read.
		StrictLoad bool
		Seed       Seeder
	}

	// Store owns the in-memory Document and is its only path to the ObjectStore.
	// Every mutation goes through Update, which persists the whole document.
	Store struct {
		objects core.ObjectStore
		logger  core.Logger
		opts    Options

		mu     sync.RWMutex
		doc    *Document
		loaded bool
		rootID string
		fileID string // empty while the remote document must be created
	}
)

func NewStore(objects core.ObjectStore, logger core.Logger, opts Options) *Store {
	return &Store{
		objects: objects,
		logger:  logger,
		opts:    opts,
	}
}

// NewStoreFromConfig builds a Store using the store settings of conf.
func NewStoreFromConfig(objects core.ObjectStore, logger core.Logger, conf *core.Config, seed Seeder) *Store {
	return NewStore(objects, logger, Options{
		RootFolder:   conf.Store.RootFolder,
		DocumentName: conf.Store.DocumentName,
		StrictLoad:   conf.Store.StrictLoad,
		Seed:         seed,
	})
}

// Load reads the document from the ObjectStore.
// On first load, a missing document is bootstrapped and created right away, and an unreadable one
// is reported and replaced by a bootstrap document, unless Options.StrictLoad is set.
// Once a document is loaded, Load behaves like Reload.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.reload(ctx)
	}
	return s.load(ctx)
}

// Reload replaces the in-memory document with the remote one.
// On failure the current document is kept and the error returned.
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// RootID returns the ID of the root folder holding the document and the class folders.
func (s *Store) RootID(ctx context.Context) (string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootID == "" {
		if err := s.resolveRoot(ctx); err != nil {
			return "", err
		}
	}
	return s.rootID, nil
}

// View calls fn with the current document. fn must neither modify nor retain it.
func (s *Store) View(ctx context.Context, fn func(doc *Document) error) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.doc)
}

// Update applies fn to the document and saves it.
// If fn or the save fails the document is rolled back to its previous state.
func (s *Store) Update(ctx context.Context, fn func(doc *Document) error) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.doc.Clone()
	if err := fn(s.doc); err != nil {
		s.doc = snapshot
		return err
	}
	if err := s.save(ctx); err != nil {
		s.doc = snapshot
		return err
	}
	return nil
}

// Save persists the current document.
func (s *Store) Save(ctx context.Context) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx)
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	return s.load(ctx)
}

// fetch reads the remote document. fileID is set as soon as the document file is found.
func (s *Store) fetch(ctx context.Context) (rootID, fileID string, doc *Document, err error) {
	if rootID, err = s.rootFolder(ctx); err != nil {
		return "", "", nil, err
	}
	fileID, err = s.objects.FindByNameAndParent(ctx, s.opts.DocumentName, rootID)
	if err != nil {
		return rootID, "", nil, errors.Wrap(err, "finding document")
	}
	data, err := s.objects.DownloadBlob(ctx, fileID)
	if err != nil {
		return rootID, fileID, nil, errors.Wrap(err, "downloading document")
	}
	if doc, err = Decode(bytes.NewReader(data)); err != nil {
		return rootID, fileID, nil, err
	}
	return rootID, fileID, doc, nil
}

func (s *Store) load(ctx context.Context) error {
	rootID, fileID, doc, err := s.fetch(ctx)
	if err == nil {
		s.rootID, s.fileID, s.doc, s.loaded = rootID, fileID, doc, true
		return nil
	}

	if rootID != "" && fileID == "" && errors.Is(err, core.ErrNotFound) {
		s.rootID, s.fileID = rootID, ""
		if err = s.bootstrap(); err != nil {
			return err
		}
		s.logger.Info("no remote document found, bootstrapped a new one")
		if err = s.save(ctx); err != nil {
			s.logger.Warn("creating bootstrap document", err)
		}
		return nil
	}
	return s.fallback(rootID, fileID, err)
}

// reload swaps in the remote document, leaving the current one untouched on failure.
func (s *Store) reload(ctx context.Context) error {
	rootID, fileID, doc, err := s.fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "reloading document")
	}
	s.rootID, s.fileID, s.doc = rootID, fileID, doc
	return nil
}

// fallback replaces an unreadable document with a bootstrap one.
// The remote document gets overwritten on the next save.
func (s *Store) fallback(rootID, fileID string, cause error) error {
	if s.opts.StrictLoad {
		return errors.Wrap(cause, "loading document")
	}
	s.logger.Error("document could not be loaded, falling back to a bootstrap document", cause)
	s.rootID, s.fileID = rootID, fileID
	return s.bootstrap()
}

func (s *Store) bootstrap() error {
	doc := New()
	if s.opts.Seed != nil {
		if err := s.opts.Seed(doc); err != nil {
			return errors.Wrap(err, "seeding bootstrap document")
		}
	}
	s.doc = doc
	s.loaded = true
	return nil
}

// rootFolder finds the root folder, creating it if missing.
func (s *Store) rootFolder(ctx context.Context) (string, error) {
	id, err := s.objects.FindByNameAndParent(ctx, s.opts.RootFolder, "")
	if errors.Is(err, core.ErrNotFound) {
		id, err = s.objects.CreateFolder(ctx, s.opts.RootFolder, "")
	}
	if err != nil {
		return "", errors.Wrap(err, "resolving root folder")
	}
	return id, nil
}

func (s *Store) resolveRoot(ctx context.Context) error {
	id, err := s.rootFolder(ctx)
	if err != nil {
		return err
	}
	s.rootID = id
	return nil
}

func (s *Store) save(ctx context.Context) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s.doc); err != nil {
		return err
	}
	if s.rootID == "" {
		if err := s.resolveRoot(ctx); err != nil {
			return err
		}
	}
	if s.fileID == "" {
		// the document may exist even though it could not be found at load
		id, err := s.objects.FindByNameAndParent(ctx, s.opts.DocumentName, s.rootID)
		switch {
		case err == nil:
			s.fileID = id
		case !errors.Is(err, core.ErrNotFound):
			return errors.Wrap(err, "finding document")
		}
	}
	if s.fileID != "" {
		return errors.Wrap(s.objects.UpdateBlob(ctx, s.fileID, &buf), "updating document")
	}

	obj, err := s.objects.UploadBlob(ctx, &buf, s.opts.DocumentName, s.rootID)
	if err != nil {
		return errors.Wrap(err, "creating document")
	}
	s.fileID = obj.ID
	return nil
}
