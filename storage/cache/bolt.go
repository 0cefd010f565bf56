package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var blobsBucket = []byte("Blobs")

// boltBackend keeps entries in a bbolt file, so that they survive restarts.
type boltBackend struct {
	db *bbolt.DB
}

var _ Backend = (*boltBackend)(nil)

// OpenBoltBackend opens (or creates) the cache file at path.
func OpenBoltBackend(path string) (Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening cache file")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating cache bucket")
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Get(id string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(blobsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		// v is only valid during the transaction; Unmarshal copies it
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "reading cache entry %q", id)
	}
	return e, found, nil
}

func (b *boltBackend) Put(id string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobsBucket).Put([]byte(id), data)
	})
}

func (b *boltBackend) Delete(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobsBucket).Delete([]byte(id))
	})
}

func (b *boltBackend) Close() error {
	return b.db.Close()
}
