package testutil

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classdrive/core"
)

// RunObjectStoreTests checks the core.ObjectStore contract on the stores built by newStore.
func RunObjectStoreTests(t *testing.T, newStore func(t *testing.T) core.ObjectStore) {
	ctx := context.Background()

	t.Run("folders and blobs", func(t *testing.T) {
		s := newStore(t)

		root, err := s.CreateFolder(ctx, "ROOT", "")
		require.NoError(t, err)
		class, err := s.CreateFolder(ctx, "Math", root)
		require.NoError(t, err)

		obj, err := s.UploadBlob(ctx, bytes.NewBufferString("hello"), "hw.pdf", class)
		require.NoError(t, err)
		assert.Equal(t, "hw.pdf", obj.Name)
		assert.NotEmpty(t, obj.ID)

		got, err := s.DownloadBlob(ctx, obj.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)

		require.NoError(t, s.UpdateBlob(ctx, obj.ID, bytes.NewBufferString("bye")))
		got, err = s.DownloadBlob(ctx, obj.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("bye"), got)

		id, err := s.FindByNameAndParent(ctx, "Math", root)
		require.NoError(t, err)
		assert.Equal(t, class, id)
		id, err = s.FindByNameAndParent(ctx, "hw.pdf", class)
		require.NoError(t, err)
		assert.Equal(t, obj.ID, id)

		assert.NoError(t, s.SetPublicReadable(ctx, obj.ID))
	})

	t.Run("empty blob", func(t *testing.T) {
		s := newStore(t)
		obj, err := s.UploadBlob(ctx, bytes.NewReader(nil), "empty.txt", "")
		require.NoError(t, err)
		got, err := s.DownloadBlob(ctx, obj.ID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("duplicate names", func(t *testing.T) {
		s := newStore(t)
		first, err := s.CreateFolder(ctx, "Math", "")
		require.NoError(t, err)
		second, err := s.CreateFolder(ctx, "Math", "")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		id, err := s.FindByNameAndParent(ctx, "Math", "")
		require.NoError(t, err)
		assert.Contains(t, []string{first, second}, id)
	})

	t.Run("recursive delete", func(t *testing.T) {
		s := newStore(t)
		class, err := s.CreateFolder(ctx, "Math", "")
		require.NoError(t, err)
		assignment, err := s.CreateFolder(ctx, "HW1", class)
		require.NoError(t, err)
		obj, err := s.UploadBlob(ctx, bytes.NewBufferString("x"), "amy_hw.pdf", assignment)
		require.NoError(t, err)

		require.NoError(t, s.DeleteByID(ctx, class))

		_, err = s.DownloadBlob(ctx, obj.ID)
		assert.True(t, errors.Is(err, core.ErrNotFound), "blob below a deleted folder: %v", err)
		_, err = s.FindByNameAndParent(ctx, "HW1", class)
		assert.True(t, errors.Is(err, core.ErrNotFound), "folder below a deleted folder: %v", err)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		folder, err := s.CreateFolder(ctx, "Math", "")
		require.NoError(t, err)

		tests := []struct {
			name string
			call func() error
		}{
			{"create in missing parent", func() error {
				_, err := s.CreateFolder(ctx, "x", "missing")
				return err
			}},
			{"upload in missing parent", func() error {
				_, err := s.UploadBlob(ctx, bytes.NewBufferString("x"), "x", "missing")
				return err
			}},
			{"update missing", func() error {
				return s.UpdateBlob(ctx, "missing", bytes.NewBufferString("x"))
			}},
			{"download missing", func() error {
				_, err := s.DownloadBlob(ctx, "missing")
				return err
			}},
			{"download folder", func() error {
				_, err := s.DownloadBlob(ctx, folder)
				return err
			}},
			{"delete missing", func() error {
				return s.DeleteByID(ctx, "missing")
			}},
			{"find missing", func() error {
				_, err := s.FindByNameAndParent(ctx, "x", folder)
				return err
			}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				err := tc.call()
				assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
			})
		}
	})
}
