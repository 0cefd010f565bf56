// Package cache memoizes downloaded blobs in front of a core.ObjectStore.
// Blob contents never change once uploaded, so entries only expire with time,
// or when the blob is overwritten or deleted through the cache.
package cache

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trezcool/classdrive/core"
)

// NowFunc is mocked in tests.
var NowFunc = time.Now

type (
	Entry struct {
		Data   []byte    `json:"data"`
		Expiry time.Time `json:"expiry"`
	}

	// Backend holds cache entries by blob ID.
	Backend interface {
		Get(id string) (Entry, bool, error)
		Put(id string, e Entry) error
		Delete(id string) error
		Close() error
	}

	// Store is a core.ObjectStore serving DownloadBlob from its Backend.
	Store struct {
		core.ObjectStore
		backend Backend
		ttl     time.Duration
		logger  core.Logger
		group   singleflight.Group
	}
)

var _ core.ObjectStore = (*Store)(nil)

func New(objects core.ObjectStore, backend Backend, ttl time.Duration, logger core.Logger) *Store {
	return &Store{
		ObjectStore: objects,
		backend:     backend,
		ttl:         ttl,
		logger:      logger,
	}
}

// NewFromConfig caches in a bbolt file when conf.Cache.Path is set, in memory otherwise.
func NewFromConfig(objects core.ObjectStore, conf *core.Config, logger core.Logger) (*Store, error) {
	var backend Backend = NewMemoryBackend()
	if conf.Cache.Path != "" {
		bolt, err := OpenBoltBackend(conf.Cache.Path)
		if err != nil {
			return nil, err
		}
		backend = bolt
	}
	return New(objects, backend, conf.Cache.TTL, logger), nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	now := NowFunc()
	e, ok, err := s.backend.Get(id)
	switch {
	case err != nil:
		s.logger.Warn("reading blob cache", err)
	case ok && now.Before(e.Expiry):
		return e.Data, nil
	case ok:
		s.invalidate(id)
	}

	// concurrent misses share one download, detached from the caller that started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		data, err := s.ObjectStore.DownloadBlob(shared, id)
		if err != nil {
			return nil, err
		}
		if s.ttl > 0 {
			if err := s.backend.Put(id, Entry{Data: data, Expiry: NowFunc().Add(s.ttl)}); err != nil {
				s.logger.Warn("writing blob cache", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) UpdateBlob(ctx context.Context, id string, r io.Reader) error {
	err := s.ObjectStore.UpdateBlob(ctx, id, r)
	s.invalidate(id)
	return err
}

// DeleteByID drops the cached entry of id. Entries of blobs inside a deleted folder expire with time.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	err := s.ObjectStore.DeleteByID(ctx, id)
	s.invalidate(id)
	return err
}

func (s *Store) invalidate(id string) {
	if err := s.backend.Delete(id); err != nil {
		s.logger.Warn("invalidating blob cache", err)
	}
}
