// Package auth issues and verifies the bearer tokens used by the HTTP API.
// Users are seeded from configuration; passwords are stored only as bcrypt
// hashes and tokens are HS256 JWTs carrying the principal.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tradecore/pkg/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserConfig seeds one user. Either PasswordHash (bcrypt) or Password may be
// set; a plaintext password is hashed once at startup and never retained.
type UserConfig struct {
	UserID       string
	Username     string
	Password     string
	PasswordHash string
	Role         types.Role
}

// Config holds the token signing secret, the token lifetime, and the seeded
// users.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	Users     []UserConfig
}

type user struct {
	principal types.Principal
	hash      []byte
}

// Service authenticates users and verifies tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	users  map[string]user
	logger *slog.Logger
	now    func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
}

// NewService validates the configuration and hashes any plaintext seed
// passwords.
func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}

	users := make(map[string]user, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.Username == "" || u.UserID == "" {
			return nil, errors.New("auth: user requires user_id and username")
		}
		if !u.Role.AtLeast(types.RoleTrader) {
			return nil, fmt.Errorf("auth: user %s has unknown role %q", u.Username, u.Role)
		}
		if _, exists := users[u.Username]; exists {
			return nil, fmt.Errorf("auth: duplicate username %s", u.Username)
		}

		hash := []byte(u.PasswordHash)
		if len(hash) == 0 {
			if u.Password == "" {
				return nil, fmt.Errorf("auth: user %s has no password", u.Username)
			}
			h, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("auth: hash password for %s: %w", u.Username, err)
			}
			hash = h
		}

		users[u.Username] = user{
			principal: types.Principal{UserID: u.UserID, Username: u.Username, Role: u.Role},
			hash:      hash,
		}
	}

	return &Service{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		users:  users,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}, nil
}

// Authenticate checks the credentials and returns a signed token plus the
// principal it embeds. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(username, password string) (string, types.Principal, error) {
	u, ok := s.users[username]
	if !ok {
		// Burn comparable time so absent users cannot be probed by latency.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uqJ88XGCu.0dTdAX9mYVl37rvLSdrO6"), []byte(password))
		return "", types.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		s.logger.Warn("failed login", "username", username)
		return "", types.Principal{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: u.principal.Username,
		Role:     u.principal.Role,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", types.Principal{}, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("login", "username", username, "role", u.principal.Role)
	return signed, u.principal, nil
}

// Verify parses and validates a token and returns the principal.
func (s *Service) Verify(tokenString string) (types.Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return types.Principal{}, ErrInvalidToken
	}
	if c.Subject == "" || !c.Role.AtLeast(types.RoleTrader) {
		return types.Principal{}, ErrInvalidToken
	}

	return types.Principal{UserID: c.Subject, Username: c.Username, Role: c.Role}, nil
}
