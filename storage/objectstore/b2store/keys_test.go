package b2store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	root := folderKey("", "CLASSDRIVE_DATA")
	assert.Equal(t, "CLASSDRIVE_DATA", root)
	assert.Equal(t, "CLASSDRIVE_DATA/.folder", markerKey(root))

	class := folderKey(root, "10A1/b")
	assert.Equal(t, "CLASSDRIVE_DATA/10A1%2Fb", class)

	key := blobKey(class, "0b6d", "amy_essay v2.pdf")
	assert.Equal(t, "CLASSDRIVE_DATA/10A1%2Fb/0b6d_amy_essay%20v2.pdf", key)
	assert.Equal(t, "amy_essay v2.pdf", blobName(class, key))
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		key    string
		want   string
	}{
		{name: "root blob", key: "n_database.json", want: "database.json"},
		{name: "nested", parent: "a/b", key: "a/b/n_x.txt", want: "x.txt"},
		{name: "other parent", parent: "a/c", key: "a/b/n_x.txt"},
		{name: "deeper level", parent: "a", key: "a/b/n_x.txt"},
		{name: "folder marker", parent: "a", key: "a/.folder"},
		{name: "bad escape", parent: "a", key: "a/n_%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blobName(tt.parent, tt.key))
		})
	}
}
