package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
)

var NowFunc = time.Now // mockable

// Manager issues and validates the session tokens kept in the document's sessions collection.
// A user has at most one live session.
type Manager struct {
	store        *document.Store
	logger       core.Logger
	ttl          time.Duration
	refreshBelow time.Duration
}

// NewManager returns a Manager issuing sessions valid for ttl.
// Validation extends a session to a full ttl when less than refreshBelow remains.
// refreshBelow defaults to 5/6 of ttl.
func NewManager(store *document.Store, logger core.Logger, ttl, refreshBelow time.Duration) *Manager {
	if refreshBelow <= 0 || refreshBelow > ttl {
		refreshBelow = ttl * 5 / 6
	}
	return &Manager{
		store:        store,
		logger:       logger,
		ttl:          ttl,
		refreshBelow: refreshBelow,
	}
}

func now() time.Time { return NowFunc().UTC() }

// Create opens a session for username, closing the ones it already had.
func (m *Manager) Create(ctx context.Context, username, role, fullName string) (string, error) {
	token := uuid.NewString()
	err := m.store.Update(ctx, func(doc *document.Document) error {
		t := now()
		for tok, sess := range doc.Sessions {
			if sess.Username == username || !t.Before(sess.Expiry) {
				delete(doc.Sessions, tok)
			}
		}
		doc.Sessions[token] = document.Session{
			Username: username,
			Role:     role,
			FullName: fullName,
			Expiry:   t.Add(m.ttl),
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "creating session")
	}
	return token, nil
}

// Validate returns the live session for token, or core.ErrNotFound.
// Expired sessions are deleted.
func (m *Manager) Validate(ctx context.Context, token string) (document.Session, error) {
	if token == "" {
		return document.Session{}, core.ErrNotFound
	}

	var (
		sess  document.Session
		found bool
	)
	err := m.store.View(ctx, func(doc *document.Document) error {
		sess, found = doc.Sessions[token]
		return nil
	})
	if err != nil {
		return document.Session{}, err
	}
	if !found {
		return document.Session{}, core.ErrNotFound
	}

	t := now()
	switch {
	case !t.Before(sess.Expiry):
		if err := m.Destroy(ctx, token); err != nil {
			// still expired, the next validation retries the purge
			m.logger.Error("purging expired session", err)
		}
		return document.Session{}, core.ErrNotFound
	case sess.Expiry.Sub(t) < m.refreshBelow:
		return m.extend(ctx, token, sess)
	}
	return sess, nil
}

func (m *Manager) extend(ctx context.Context, token string, sess document.Session) (document.Session, error) {
	var extended document.Session
	err := m.store.Update(ctx, func(doc *document.Document) error {
		cur, ok := doc.Sessions[token]
		if !ok {
			return core.ErrNotFound
		}
		cur.Expiry = now().Add(m.ttl)
		doc.Sessions[token] = cur
		extended = cur
		return nil
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		return document.Session{}, err
	case err != nil:
		// the session is still valid, the extension is retried on the next validation
		m.logger.Warn("extending session", err)
		return sess, nil
	}
	return extended, nil
}

// Destroy removes the session if present.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	err := m.store.Update(ctx, func(doc *document.Document) error {
		delete(doc.Sessions, token)
		return nil
	})
	return errors.Wrap(err, "destroying session")
}
