// Package identity resolves and verifies the users on whose behalf
// authorizations are issued. The protocol engine depends only on the
// Verifier interface; Directory is an in-process implementation backed by
// bcrypt password hashes.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the identifier is unknown or the
// password does not match. Callers must not distinguish the two cases: the
// collapse prevents account enumeration through the password grant.
var ErrInvalidCredentials = errors.New("invalid user credentials")

// Verifier checks a user's credentials and resolves the user ID.
type Verifier interface {
	// VerifyCredentials verifies the identifier/password pair and returns
	// the stable user ID. Identifiers containing '@' are resolved as email
	// addresses, all others as usernames. Returns ErrInvalidCredentials on
	// any failure.
	VerifyCredentials(ctx context.Context, identifier, password string) (string, error)
}

// User is an account in the directory.
type User struct {
	ID       string
	Username string
	Email    string
	FullName string

	passwordHash []byte
}

// Directory is an in-memory user store with bcrypt-hashed passwords.
// Safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	byName  map[string]*User
	byEmail map[string]*User
	byID    map[string]*User
	cost    int
}

var _ Verifier = (*Directory)(nil)

// NewDirectory creates an empty user directory.
func NewDirectory() *Directory {
	return &Directory{
		byName:  make(map[string]*User),
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
		cost:    bcrypt.DefaultCost,
	}
}

// AddUser registers a user with the given password. Usernames and emails are
// matched case-insensitively. Returns an error if the username or email is
// already taken.
func (d *Directory) AddUser(user *User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return err
	}

	name := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[name]; ok {
		return errors.New("username already registered")
	}
	if email != "" {
		if _, ok := d.byEmail[email]; ok {
			return errors.New("email already registered")
		}
	}

	u := *user
	u.passwordHash = hash
	d.byName[name] = &u
	if email != "" {
		d.byEmail[email] = &u
	}
	d.byID[u.ID] = &u
	return nil
}

// GetUser returns the user with the given ID, or nil if absent.
func (d *Directory) GetUser(id string) *User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil
	}
	copied := *u
	return &copied
}

// VerifyCredentials implements Verifier.
func (d *Directory) VerifyCredentials(_ context.Context, identifier, password string) (string, error) {
	key := strings.ToLower(identifier)

	d.mu.RLock()
	var u *User
	if strings.Contains(identifier, "@") {
		u = d.byEmail[key]
	} else {
		u = d.byName[key]
	}
	d.mu.RUnlock()

	if u == nil {
		// Burn a comparison anyway so unknown identifiers cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return u.ID, nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to equalize
// timing for unknown identifiers.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("directory-timing-pad"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()
