package user

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
	"github.com/trezcool/classdrive/core/session"
)

// Service is the authentication surface over the document's accounts.
type Service struct {
	store    *document.Store
	sessions *session.Manager
	logger   core.Logger
	conf     core.AuthConfig
	tokens   tokenGenerator
}

func NewService(store *document.Store, sessions *session.Manager, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		logger:   logger,
		conf:     conf.Auth,
		tokens:   tokenGenerator{secret: []byte(conf.SecretKey), timeout: conf.Auth.PasswordResetTimeout},
	}
}

// BootstrapSeed returns the document.Seeder adding the default teacher account.
func BootstrapSeed(conf core.AuthConfig) document.Seeder {
	return func(doc *document.Document) error {
		hash := conf.BootstrapPasswordHash
		if hash == "" {
			var err error
			if hash, err = HashPassword(conf.BootstrapPassword); err != nil {
				return errors.Wrap(err, "hashing bootstrap password")
			}
		}
		doc.Admins[conf.BootstrapUsername] = document.Account{
			PasswordHash: hash,
			FullName:     conf.BootstrapFullName,
			Role:         core.RoleTeacher,
		}
		return nil
	}
}

func accounts(doc *document.Document, role string) map[string]document.Account {
	switch role {
	case core.RoleTeacher:
		return doc.Admins
	case core.RoleStudent:
		return doc.Users
	}
	return nil
}

// resolve finds the account behind username. Teachers take precedence over students.
func resolve(doc *document.Document, username string) (core.Identity, document.Account, bool) {
	acc, ok := doc.LookupAccount(username)
	if !ok {
		return core.Identity{}, document.Account{}, false
	}
	role := core.RoleStudent
	if _, isAdmin := doc.Admins[username]; isAdmin {
		role = core.RoleTeacher
	}
	return core.Identity{Username: username, Role: role, FullName: acc.FullName}, acc, true
}

// Get returns the identity of the account named username.
func (svc *Service) Get(ctx context.Context, username string) (core.Identity, error) {
	var (
		id    core.Identity
		found bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		id, _, found = resolve(doc, username)
		return nil
	})
	if err != nil {
		return core.Identity{}, err
	}
	if !found {
		return core.Identity{}, errors.Wrapf(core.ErrNotFound, "account %q", username)
	}
	return id, nil
}

// Login checks the credentials and opens a session.
// Any mismatch returns core.ErrAuthFailure, without telling which field was wrong.
func (svc *Service) Login(ctx context.Context, username, pwd string) (string, core.Identity, error) {
	username = core.CleanString(username)

	var (
		id    core.Identity
		acc   document.Account
		found bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		id, acc, found = resolve(doc, username)
		return nil
	})
	if err != nil {
		return "", core.Identity{}, err
	}
	if !found || CheckPassword(acc.PasswordHash, pwd) != nil {
		return "", core.Identity{}, core.ErrAuthFailure
	}

	if isLegacyHash(acc.PasswordHash) {
		svc.upgradeHash(ctx, id, acc.PasswordHash, pwd)
	}

	token, err := svc.sessions.Create(ctx, id.Username, id.Role, id.FullName)
	if err != nil {
		return "", core.Identity{}, err
	}
	return token, id, nil
}

// upgradeHash replaces a legacy hash with a bcrypt one. Failures are only logged.
func (svc *Service) upgradeHash(ctx context.Context, id core.Identity, oldHash, pwd string) {
	hash, err := HashPassword(pwd)
	if err == nil {
		err = svc.store.Update(ctx, func(doc *document.Document) error {
			accs := accounts(doc, id.Role)
			acc, ok := accs[id.Username]
			if !ok || acc.PasswordHash != oldHash {
				return nil // changed meanwhile
			}
			acc.PasswordHash = hash
			accs[id.Username] = acc
			return nil
		})
	}
	if err != nil {
		svc.logger.Warn("upgrading legacy password hash", err, id)
	}
}

// Identify returns the identity behind a live session token.
func (svc *Service) Identify(ctx context.Context, token string) (core.Identity, error) {
	sess, err := svc.sessions.Validate(ctx, token)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Username: sess.Username, Role: sess.Role, FullName: sess.FullName}, nil
}

func (svc *Service) Logout(ctx context.Context, token string) error {
	return svc.sessions.Destroy(ctx, token)
}

// Register creates a student account.
func (svc *Service) Register(ctx context.Context, na NewAccount) (core.Identity, error) {
	return svc.Create(ctx, na, core.RoleStudent)
}

// Create creates an account with the given role.
// Usernames are unique across teachers and students.
func (svc *Service) Create(ctx context.Context, na NewAccount, role string) (core.Identity, error) {
	hash, err := HashPassword(na.Password)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "hashing password")
	}

	err = svc.store.Update(ctx, func(doc *document.Document) error {
		accs := accounts(doc, role)
		if accs == nil {
			return errors.Errorf("unknown role %q", role)
		}
		if doc.HasAccount(na.Username) {
			return errors.Wrapf(core.ErrDuplicateName, "account %q", na.Username)
		}
		accs[na.Username] = document.Account{PasswordHash: hash, FullName: na.FullName, Role: role}
		return nil
	})
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Username: na.Username, Role: role, FullName: na.FullName}, nil
}

// ResetPassword resets a student's password to the default one when fullName matches the account exactly,
// after trimming and normalization. Teacher accounts are never reset this way.
// Open sessions of the account are closed.
func (svc *Service) ResetPassword(ctx context.Context, username, fullName string) error {
	if !svc.conf.AllowDefaultReset {
		return errors.Wrap(core.ErrForbidden, "default password reset is disabled")
	}
	username = core.CleanString(username)
	fullName = core.CleanString(fullName)

	hash, err := HashPassword(svc.conf.DefaultPassword)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.store.Update(ctx, func(doc *document.Document) error {
		acc, ok := doc.Users[username]
		if !ok || core.CleanString(acc.FullName) != fullName {
			return errors.Wrapf(core.ErrNotFound, "account %q", username)
		}
		acc.PasswordHash = hash
		doc.Users[username] = acc
		closeSessions(doc, username)
		return nil
	})
}

// ChangePassword sets a new password on the account of the given role.
func (svc *Service) ChangePassword(ctx context.Context, username, role, pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.store.Update(ctx, func(doc *document.Document) error {
		accs := accounts(doc, role)
		acc, ok := accs[username]
		if !ok {
			return errors.Wrapf(core.ErrNotFound, "account %q", username)
		}
		acc.PasswordHash = hash
		accs[username] = acc
		return nil
	})
}

// RequestPasswordReset returns a reset token for the account, valid until its password changes
// or the reset timeout elapses. Tokens are handed out by a teacher, not sent to the requester.
func (svc *Service) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	var (
		acc   document.Account
		found bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, acc, found = resolve(doc, username)
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.Wrapf(core.ErrNotFound, "account %q", username)
	}
	return svc.tokens.makeToken(username, acc.PasswordHash), nil
}

// ConfirmPasswordReset sets a new password if the reset token is valid, and closes open sessions.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, rp ResetPassword) error {
	invalid := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	var (
		id    core.Identity
		acc   document.Account
		found bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		id, acc, found = resolve(doc, rp.Username)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return invalid
	}
	if err = svc.tokens.verifyToken(rp.Username, acc.PasswordHash, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	hash, err := HashPassword(rp.Password)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.store.Update(ctx, func(doc *document.Document) error {
		accs := accounts(doc, id.Role)
		cur, ok := accs[rp.Username]
		if !ok || cur.PasswordHash != acc.PasswordHash {
			return invalid // token used meanwhile
		}
		cur.PasswordHash = hash
		accs[rp.Username] = cur
		closeSessions(doc, rp.Username)
		return nil
	})
}

// UsesDefaultPassword reports whether the account still has the default reset password.
func (svc *Service) UsesDefaultPassword(ctx context.Context, id core.Identity) (bool, error) {
	var (
		acc   document.Account
		found bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		acc, found = accounts(doc, id.Role)[id.Username]
		return nil
	})
	if err != nil || !found {
		return false, err
	}
	return CheckPassword(acc.PasswordHash, svc.conf.DefaultPassword) == nil, nil
}

func closeSessions(doc *document.Document, username string) {
	for tok, sess := range doc.Sessions {
		if sess.Username == username {
			delete(doc.Sessions, tok)
		}
	}
}
