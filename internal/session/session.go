// Package session owns the signed-in till operator: the identity mirrored to
// the local cache so the till survives restarts offline, and the tokens
// issued for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"posbackend/internal/localstore"
	"posbackend/internal/models"
	"posbackend/internal/store"
)

var (
	ErrNoSession       = errors.New("no active session")
	ErrInvalidToken    = errors.New("invalid token")
	ErrSessionMismatch = errors.New("token does not belong to the active session")
)

type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// HasRole reports whether the identity's role is in the allow-list.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

func IdentityFromUser(u models.User) Identity {
	return Identity{
		UID:         u.ID.Hex(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// authSnapshot is what survives without the role; the role lives in the
// user-data snapshot so it can be refreshed on its own.
type authSnapshot struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type UserLookup interface {
	UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

type Manager struct {
	local  *localstore.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	current *Identity
}

func NewManager(local *localstore.Store, secret string, ttl time.Duration) *Manager {
	return &Manager{
		local:  local,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Restore rebuilds the session from the local snapshots. Without an auth
// snapshot any leftover user data is cleared.
func (m *Manager) Restore() (Identity, bool, error) {
	var auth authSnapshot
	found, err := m.local.Get(localstore.KeyAuth, &auth)
	if err != nil {
		return Identity{}, false, err
	}
	if !found || auth.UID == "" {
		return Identity{}, false, m.clear()
	}

	identity := Identity{UID: auth.UID, Email: auth.Email, DisplayName: auth.DisplayName}
	var userData Identity
	found, err = m.local.Get(localstore.KeyUserData, &userData)
	if err != nil {
		return Identity{}, false, err
	}
	if found && userData.UID == auth.UID {
		identity.Role = userData.Role
	}

	m.mu.Lock()
	m.current = &identity
	m.mu.Unlock()

	zap.L().Info("session restored from local cache", zap.String("uid", identity.UID), zap.String("role", identity.Role))
	return identity, true, nil
}

// Reconcile checks the current session against the remote users collection.
// A vanished user ends the session; a changed role or profile is adopted. Any
// other lookup error leaves the cached session alone.
func (m *Manager) Reconcile(ctx context.Context, users UserLookup) error {
	current, ok := m.Current()
	if !ok {
		return nil
	}

	id, err := primitive.ObjectIDFromHex(current.UID)
	if err != nil {
		zap.L().Warn("session uid is not an object id, ending session", zap.String("uid", current.UID))
		return m.End()
	}

	user, err := users.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Info("session user no longer exists, ending session", zap.String("uid", current.UID))
		return m.End()
	}
	if err != nil {
		return fmt.Errorf("reconcile session: %w", err)
	}

	updated := IdentityFromUser(user)
	if updated == current {
		return nil
	}

	m.mu.Lock()
	m.current = &updated
	m.mu.Unlock()

	if updated.Role != current.Role {
		zap.L().Info("session role refreshed", zap.String("uid", updated.UID), zap.String("from", current.Role), zap.String("to", updated.Role))
	}
	return m.persist(updated)
}

// Begin starts a session for identity, persists it and returns a signed token.
func (m *Manager) Begin(identity Identity) (string, time.Time, error) {
	if identity.UID == "" {
		return "", time.Time{}, errors.New("identity has no uid")
	}
	if err := m.persist(identity); err != nil {
		return "", time.Time{}, err
	}

	m.mu.Lock()
	m.current = &identity
	m.mu.Unlock()

	return m.issue(identity)
}

func (m *Manager) Current() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Identity{}, false
	}
	return *m.current, true
}

// End clears the session from memory and from the local cache.
func (m *Manager) End() error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.clear()
}

// Authenticate accepts a token only if it is valid and was issued to the
// identity of the active session. The returned identity carries the
// session's current role, not the one baked into the token.
func (m *Manager) Authenticate(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, ErrInvalidToken
	}

	current, ok := m.Current()
	if !ok {
		return Identity{}, ErrNoSession
	}
	if current.UID != subject {
		return Identity{}, ErrSessionMismatch
	}
	return current, nil
}

func (m *Manager) issue(identity Identity) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":   identity.UID,
		"role":  identity.Role,
		"email": identity.Email,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (m *Manager) persist(identity Identity) error {
	return m.local.PutAll(map[string]any{
		localstore.KeyAuth: authSnapshot{
			UID:         identity.UID,
			Email:       identity.Email,
			DisplayName: identity.DisplayName,
		},
		localstore.KeyUserData: identity,
	})
}

func (m *Manager) clear() error {
	return m.local.Delete(localstore.KeyAuth, localstore.KeyUserData)
}
