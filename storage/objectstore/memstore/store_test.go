package memstore_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/storage/objectstore/memstore"
	"github.com/trezcool/classdrive/testutil"
)

func TestStore(t *testing.T) {
	testutil.RunObjectStoreTests(t, func(*testing.T) core.ObjectStore {
		return memstore.New()
	})
}

func TestStore_Helpers(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	class, err := s.CreateFolder(ctx, "Math", "")
	require.NoError(t, err)
	obj, err := s.UploadBlob(ctx, bytes.NewBufferString("x"), "prompt.pdf", class)
	require.NoError(t, err)
	_, err = s.CreateFolder(ctx, "graded", class)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"graded", "prompt.pdf"}, s.Children(class))
	assert.Equal(t, []string{}, s.Children(obj.ID))

	assert.False(t, s.IsPublic(obj.ID))
	require.NoError(t, s.SetPublicReadable(ctx, obj.ID))
	assert.True(t, s.IsPublic(obj.ID))
}
