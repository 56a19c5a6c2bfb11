// Package session holds the admin login state. The shared secret gates
// admin actions; it is not a security boundary.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

var (
	ErrBadSecret    = errors.New("wrong admin secret")
	ErrInvalidToken = errors.New("invalid or expired session")
)

// Session is passed explicitly to every operation that needs the admin
// flag. A nil *Session is a visitor.
type Session struct {
	ID        string
	Admin     bool
	ExpiresAt time.Time
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Admin
}

type claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// Manager issues and revokes admin sessions.
type Manager struct {
	secret     string
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewManager accepts the admin secret either as plain text or as an
// argon2id hash in the $argon2id$v=..$m=..,t=..,p=..$salt$hash form.
func NewManager(secret string, signingKey []byte, ttl time.Duration) *Manager {
	return &Manager{
		secret:     secret,
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
		revoked:    map[string]time.Time{},
	}
}

// Login checks the secret and returns a signed session token.
func (m *Manager) Login(secret string) (string, *Session, error) {
	if !m.checkSecret(secret) {
		return "", nil, ErrBadSecret
	}

	id := randomID()
	exp := m.now().Add(m.ttl)
	c := claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.signingKey)
	if err != nil {
		return "", nil, err
	}
	return token, &Session{ID: id, Admin: true, ExpiresAt: exp}, nil
}

// Resolve validates token and returns its session.
func (m *Manager) Resolve(token string) (*Session, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	m.mu.Lock()
	_, gone := m.revoked[c.ID]
	m.mu.Unlock()
	if gone {
		return nil, ErrInvalidToken
	}

	s := &Session{ID: c.ID, Admin: c.Admin}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

// Logout revokes the session's token until it would have expired anyway.
func (m *Manager) Logout(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[s.ID] = s.ExpiresAt
}

func (m *Manager) checkSecret(given string) bool {
	if m.secret == "" {
		return false
	}
	if strings.HasPrefix(m.secret, "$argon2id$") {
		ok, err := checkArgon2(given, m.secret)
		return err == nil && ok
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(m.secret)) == 1
}

// checkArgon2 compares given with an encoded argon2id hash.
func checkArgon2(given, encoded string) (bool, error) {
	vals := strings.Split(encoded, "$")
	if len(vals) != 6 {
		return false, errors.New("invalid stored hash format")
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(vals[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, err
	}
	salt, err := base64.RawStdEncoding.DecodeString(vals[4])
	if err != nil {
		return false, err
	}
	hash, err := base64.RawStdEncoding.DecodeString(vals[5])
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(given), salt, iterations, memory, parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, other) == 1, nil
}

// HashSecret encodes secret as an argon2id hash suitable for ADMIN_SECRET.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	const (
		memory      = 64 * 1024
		iterations  = 3
		parallelism = 2
	)
	hash := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(hash)), nil
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
