// Package memstore is an in-memory core.ObjectStore, used in development and tests.
package memstore

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

type (
	object struct {
		id       string
		name     string
		parentID string
		isFolder bool
		content  []byte
		public   bool
	}

	Store struct {
		sync.RWMutex
		table map[string]*object
	}
)

var _ core.ObjectStore = (*Store)(nil) // interface compliance check

func New() *Store {
	return &Store{table: make(map[string]*object)}
}

func (s *Store) parentExists(parentID string) bool {
	if parentID == "" {
		return true
	}
	p, ok := s.table[parentID]
	return ok && p.isFolder
}

func (s *Store) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	s.Lock()
	defer s.Unlock()

	if !s.parentExists(parentID) {
		return "", errors.Wrapf(core.ErrNotFound, "parent folder %q", parentID)
	}
	obj := &object{id: uuid.NewString(), name: name, parentID: parentID, isFolder: true}
	s.table[obj.id] = obj
	return obj.id, nil
}

func (s *Store) UploadBlob(_ context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, errors.Wrap(err, "reading blob")
	}

	s.Lock()
	defer s.Unlock()

	if !s.parentExists(parentID) {
		return core.Object{}, errors.Wrapf(core.ErrNotFound, "parent folder %q", parentID)
	}
	obj := &object{id: uuid.NewString(), name: name, parentID: parentID, content: content}
	s.table[obj.id] = obj
	return core.Object{ID: obj.id, Name: name}, nil
}

func (s *Store) UpdateBlob(_ context.Context, id string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}

	s.Lock()
	defer s.Unlock()

	obj, ok := s.table[id]
	if !ok || obj.isFolder {
		return errors.Wrapf(core.ErrNotFound, "blob %q", id)
	}
	obj.content = content
	return nil
}

func (s *Store) DownloadBlob(_ context.Context, id string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	obj, ok := s.table[id]
	if !ok || obj.isFolder {
		return nil, errors.Wrapf(core.ErrNotFound, "blob %q", id)
	}
	content := make([]byte, len(obj.content))
	copy(content, obj.content)
	return content, nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.table[id]; !ok {
		return errors.Wrapf(core.ErrNotFound, "object %q", id)
	}
	s.delete(id)
	return nil
}

// delete removes id and everything below it.
func (s *Store) delete(id string) {
	for childID, obj := range s.table {
		if obj.parentID == id {
			s.delete(childID)
		}
	}
	delete(s.table, id)
}

func (s *Store) FindByNameAndParent(_ context.Context, name, parentID string) (string, error) {
	s.RLock()
	defer s.RUnlock()

	if found := s.matches(name, parentID); len(found) > 0 {
		return found[0].id, nil
	}
	return "", errors.Wrapf(core.ErrNotFound, "%q in %q", name, parentID)
}

// matches returns objects named name in parentID, lowest ID first.
func (s *Store) matches(name, parentID string) []*object {
	var found []*object
	for _, obj := range s.table {
		if obj.name == name && obj.parentID == parentID {
			found = append(found, obj)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	return found
}

func (s *Store) SetPublicReadable(_ context.Context, id string) error {
	s.Lock()
	defer s.Unlock()

	obj, ok := s.table[id]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "object %q", id)
	}
	obj.public = true
	return nil
}

// Len returns the number of stored objects, folders included.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.table)
}

// Children returns the names of the objects directly under parentID, sorted.
func (s *Store) Children(parentID string) []string {
	s.RLock()
	defer s.RUnlock()

	names := make([]string, 0)
	for _, obj := range s.table {
		if obj.parentID == parentID {
			names = append(names, obj.name)
		}
	}
	sort.Strings(names)
	return names
}

// IsPublic reports whether SetPublicReadable was called on id.
func (s *Store) IsPublic(id string) bool {
	s.RLock()
	defer s.RUnlock()
	obj, ok := s.table[id]
	return ok && obj.public
}
