package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength accepted on registration
const MinPasswordLength = 6

// DefaultTTL of a session token
const DefaultTTL = 24 * time.Hour

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrPermission)

// Session of a signed in user
type Session struct {
	User      db.User
	Token     string
	ExpiresAt time.Time
}

// Provider of user identity
type Provider interface {
	Register(name, email, password string) (*Session, error)
	Login(email, password string) (*Session, error)
	Logout()
	Current() *db.User
	Subscribe(fn func(*db.User)) (unsubscribe func())
}

// Users is the user storage used by Local
type Users interface {
	AddUser(user *db.User) error
	GetUserByEmail(email string) (*db.User, error)
	GetUserByID(id uuid.UUID) (*db.User, error)
}

// Local identity provider on stored users, bcrypt hashes and signed tokens
type Local struct {
	users  Users
	tokens *Tokens
	now    func() time.Time

	mu          sync.Mutex
	current     *db.User
	subscribers map[int]func(*db.User)
	nextID      int
}

// NewLocal provider signing tokens with secret
func NewLocal(users Users, secret []byte) *Local {
	return &Local{
		users:       users,
		tokens:      NewTokens(secret, DefaultTTL),
		now:         time.Now,
		subscribers: make(map[int]func(*db.User)),
	}
}

// Register a new user and sign them in
func (l *Local) Register(name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	v := &apperr.Validator{}
	v.Check(name != "", "name", "must not be blank")
	_, err := mail.ParseAddress(email)
	v.Check(err == nil, "email", "%q is not an email address", email)
	v.Check(len(password) >= MinPasswordLength, "password", "must have at least %d characters", MinPasswordLength)
	if err := v.Err(); err != nil {
		return nil, err
	}

	if _, err := l.users.GetUserByEmail(email); err == nil {
		return nil, apperr.Invalid("email", "%s is already registered", email)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Storage("find user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &db.User{
		ID:                   uuid.New(),
		Name:                 name,
		Email:                email,
		PasswordHash:         hash,
		PushoverDeviceTokens: map[string]string{},
		CreatedAt:            l.now(),
	}

	if err := l.users.AddUser(user); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}

		return nil, apperr.Storage("add user", err)
	}

	return l.signIn(user)
}

// Login with email and password
func (l *Local) Login(email, password string) (*Session, error) {
	user, err := l.users.GetUserByEmail(strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errInvalidCredentials
	}

	if err != nil {
		return nil, apperr.Storage("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	return l.signIn(user)
}

// Resume the session of a token issued earlier
func (l *Local) Resume(token string) (*Session, error) {
	claims, err := l.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: token has an invalid user id", apperr.ErrPermission)
	}

	user, err := l.users.GetUserByID(id)
	if err != nil {
		return nil, err
	}

	l.setCurrent(user)

	return &Session{User: *user, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout the current user
func (l *Local) Logout() {
	l.setCurrent(nil)
}

// Current user, nil when signed out
func (l *Local) Current() *db.User {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.current
}

// Subscribe to session changes. fn is called right away with the current user.
func (l *Local) Subscribe(fn func(*db.User)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subscribers[id] = fn
	current := l.current
	l.mu.Unlock()

	fn(current)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.subscribers, id)
	}
}

func (l *Local) signIn(user *db.User) (*Session, error) {
	token, expiresAt, err := l.tokens.Issue(user, l.now())
	if err != nil {
		return nil, err
	}

	l.setCurrent(user)

	return &Session{User: *user, Token: token, ExpiresAt: expiresAt}, nil
}

func (l *Local) setCurrent(user *db.User) {
	l.mu.Lock()
	l.current = user
	subscribers := make([]func(*db.User), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		subscribers = append(subscribers, fn)
	}
	l.mu.Unlock()

	for _, fn := range subscribers {
		fn(user)
	}
}
