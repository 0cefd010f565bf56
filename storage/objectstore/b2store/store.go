// Package b2store is a core.ObjectStore over a Backblaze B2 bucket.
//
// B2 has no folders: a folder is a key prefix marked by an empty placeholder object,
// and object IDs are their keys. Blob keys carry a random prefix so that blobs of
// the same name never overwrite each other.
package b2store

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

type Store struct {
	bucket *b2.Bucket
}

var _ core.ObjectStore = (*Store)(nil)

func New(bucket *b2.Bucket) *Store {
	return &Store{bucket: bucket}
}

func NewFromConfig(ctx context.Context, conf core.B2Config) (*Store, error) {
	client, err := b2.NewClient(ctx, conf.AccountID, conf.AppKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %q", conf.Bucket)
	}
	return New(bucket), nil
}

// classify maps a blazer error to core.ErrNotFound or a remote error.
func classify(op, key string, err error) error {
	if b2.IsNotExist(err) {
		return errors.Wrapf(core.ErrNotFound, "%s %q", op, key)
	}
	return core.NewRemoteError(op, errors.Wrap(err, key))
}

func (s *Store) write(ctx context.Context, op, key string, r io.Reader) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return core.NewRemoteError(op, errors.Wrapf(err, "writing %q", key))
	}
	if err := w.Close(); err != nil {
		return core.NewRemoteError(op, errors.Wrapf(err, "closing %q", key))
	}
	return nil
}

func (s *Store) exists(ctx context.Context, op, key string) error {
	if _, err := s.bucket.Object(key).Attrs(ctx); err != nil {
		return classify(op, key, err)
	}
	return nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	id := folderKey(parentID, name)
	if err := s.write(ctx, "createFolder", markerKey(id), strings.NewReader("")); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	key := blobKey(parentID, uuid.NewString(), name)
	if err := s.write(ctx, "upload", key, r); err != nil {
		return core.Object{}, err
	}
	return core.Object{ID: key, Name: name}, nil
}

func (s *Store) UpdateBlob(ctx context.Context, id string, r io.Reader) error {
	if err := s.exists(ctx, "update", id); err != nil {
		return err
	}
	return s.write(ctx, "update", id, r)
}

func (s *Store) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	r := s.bucket.Object(id).NewReader(ctx)
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classify("download", id, err)
	}
	return data, nil
}

// DeleteByID deletes a blob, or every object under a folder.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := s.exists(ctx, "delete", markerKey(id)); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return err
		}
		if err = s.bucket.Object(id).Delete(ctx); err != nil {
			return classify("delete", id, err)
		}
		return nil
	}

	iter := s.bucket.List(ctx, b2.ListPrefix(id+"/"))
	for iter.Next() {
		if err := iter.Object().Delete(ctx); err != nil && !b2.IsNotExist(err) {
			return classify("delete", iter.Object().Name(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return classify("delete", id, err)
	}
	return nil
}

// FindByNameAndParent looks for a folder first, then for a blob.
func (s *Store) FindByNameAndParent(ctx context.Context, name, parentID string) (string, error) {
	folderID := folderKey(parentID, name)
	err := s.exists(ctx, "find", markerKey(folderID))
	if err == nil {
		return folderID, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return "", err
	}

	iter := s.bucket.List(ctx, b2.ListPrefix(childPrefix(parentID)), b2.ListDelimiter("/"))
	for iter.Next() {
		key := iter.Object().Name()
		if blobName(parentID, key) == name {
			return key, nil
		}
	}
	if err = iter.Err(); err != nil {
		return "", classify("find", parentID, err)
	}
	return "", errors.Wrapf(core.ErrNotFound, "%q in %q", name, parentID)
}

// SetPublicReadable is a no-op: visibility is a bucket setting on B2.
func (s *Store) SetPublicReadable(context.Context, string) error {
	return nil
}
