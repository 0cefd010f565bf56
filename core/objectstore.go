package core

import (
	"context"
	"io"
)

type (
	// Object is a stored blob or folder.
	Object struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Blob is an uploaded file waiting to be stored.
	Blob struct {
		Name    string
		Content io.Reader
	}

	// ObjectStore is the remote tree of folders and blobs.
	// An empty parent ID designates the store root.
	// Lookups that miss return ErrNotFound, any other failure matches ErrRemoteUnavailable.
	ObjectStore interface {
		CreateFolder(ctx context.Context, name, parentID string) (string, error)
		UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (Object, error)
		// UpdateBlob overwrites the content of an existing blob, keeping its ID.
		UpdateBlob(ctx context.Context, id string, r io.Reader) error
		DownloadBlob(ctx context.Context, id string) ([]byte, error)
		// DeleteByID deletes a blob, or a folder with all its contents.
		DeleteByID(ctx context.Context, id string) error
		FindByNameAndParent(ctx context.Context, name, parentID string) (string, error)
		// SetPublicReadable is best-effort, callers ignore its error.
		SetPublicReadable(ctx context.Context, id string) error
	}
)
