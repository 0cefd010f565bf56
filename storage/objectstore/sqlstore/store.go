// Package sqlstore is a core.ObjectStore keeping folders and blobs in a single SQL table,
// on Postgres or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

type (
	object struct {
		ID        string `db:"id"`
		Name      string `db:"name"`
		ParentID  string `db:"parent_id"`
		IsFolder  bool   `db:"is_folder"`
		Content   []byte `db:"content"`
		Public    bool   `db:"public"`
		CreatedAt int64  `db:"created_at"`
	}

	Store struct {
		db *sqlx.DB
	}
)

var _ core.ObjectStore = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) remoteErr(op string, err error) error {
	return core.NewRemoteError(op, err)
}

func (s *Store) checkParent(ctx context.Context, op, parentID string) error {
	if parentID == "" {
		return nil
	}
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM objects WHERE id = ? AND is_folder`)
	if err := s.db.GetContext(ctx, &n, q, parentID); err != nil {
		return s.remoteErr(op, err)
	}
	if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "parent folder %q", parentID)
	}
	return nil
}

// insert stores obj under a fresh id and returns it.
func (s *Store) insert(ctx context.Context, op string, obj object) (string, error) {
	obj.ID = uuid.NewString()
	obj.CreatedAt = time.Now().UnixNano()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO objects (id, name, parent_id, is_folder, content, public, created_at)
		VALUES (:id, :name, :parent_id, :is_folder, :content, :public, :created_at)`, obj)
	if err != nil {
		return "", s.remoteErr(op, err)
	}
	return obj.ID, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := s.checkParent(ctx, "createFolder", parentID); err != nil {
		return "", err
	}
	return s.insert(ctx, "createFolder", object{Name: name, ParentID: parentID, IsFolder: true})
}

func (s *Store) UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, errors.Wrap(err, "reading blob")
	}
	if err = s.checkParent(ctx, "upload", parentID); err != nil {
		return core.Object{}, err
	}
	id, err := s.insert(ctx, "upload", object{Name: name, ParentID: parentID, Content: content})
	if err != nil {
		return core.Object{}, err
	}
	return core.Object{ID: id, Name: name}, nil
}

func (s *Store) UpdateBlob(ctx context.Context, id string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}
	q := s.db.Rebind(`UPDATE objects SET content = ? WHERE id = ? AND NOT is_folder`)
	res, err := s.db.ExecContext(ctx, q, content, id)
	if err != nil {
		return s.remoteErr("update", err)
	}
	return s.checkAffected("update", id, res)
}

func (s *Store) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	q := s.db.Rebind(`SELECT content FROM objects WHERE id = ? AND NOT is_folder`)
	err := s.db.GetContext(ctx, &content, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(core.ErrNotFound, "blob %q", id)
	}
	if err != nil {
		return nil, s.remoteErr("download", err)
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

// DeleteByID deletes id and everything below it.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	q := s.db.Rebind(`
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM objects WHERE id = ?
			UNION ALL
			SELECT o.id FROM objects o JOIN tree t ON o.parent_id = t.id
		)
		DELETE FROM objects WHERE id IN (SELECT id FROM tree)`)
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return s.remoteErr("delete", err)
	}
	return s.checkAffected("delete", id, res)
}

// FindByNameAndParent returns the oldest match.
func (s *Store) FindByNameAndParent(ctx context.Context, name, parentID string) (string, error) {
	var id string
	q := s.db.Rebind(`SELECT id FROM objects WHERE name = ? AND parent_id = ? ORDER BY created_at, id LIMIT 1`)
	err := s.db.GetContext(ctx, &id, q, name, parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(core.ErrNotFound, "%q in %q", name, parentID)
	}
	if err != nil {
		return "", s.remoteErr("find", err)
	}
	return id, nil
}

func (s *Store) SetPublicReadable(ctx context.Context, id string) error {
	q := s.db.Rebind(`UPDATE objects SET public = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, true, id)
	if err != nil {
		return s.remoteErr("share", err)
	}
	return s.checkAffected("share", id, res)
}

func (s *Store) checkAffected(op, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.remoteErr(op, err)
	}
	if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "object %q", id)
	}
	return nil
}
