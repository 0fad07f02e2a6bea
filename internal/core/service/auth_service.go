package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// AdminCredentials identify the single operator account. The password is
// only known as a bcrypt hash.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AuthService implements login and logout.
type AuthService struct {
	accounts  ports.AccountStore
	sessions  *SessionManager
	admin     AdminCredentials
	jwtSecret string
	tokenTTL  time.Duration
	log       zerolog.Logger
}

func NewAuthService(
	accounts ports.AccountStore,
	sessions *SessionManager,
	admin AdminCredentials,
	jwtSecret string,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AuthService{
		accounts:  accounts,
		sessions:  sessions,
		admin:     admin,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

// Login authenticates either the operator or a regular account and opens a
// session. Regular accounts are matched by exact username, compared on the
// stored password bytes, and must be active.
func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if s.admin.Username != "" && username == s.admin.Username {
		if bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)) != nil {
			return nil, domain.ErrInvalidCredentials
		}
		return s.issue(ctx, username, domain.RoleAdmin, "", "")
	}

	acct, err := s.accounts.Get(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, &domain.StoreError{Op: "login.read", Err: err}
	}
	if subtle.ConstantTimeCompare([]byte(acct.Password), []byte(password)) != 1 {
		return nil, domain.ErrInvalidCredentials
	}
	if !acct.Active() {
		return nil, domain.ErrAccountNotActive
	}

	return s.issue(ctx, acct.Username, domain.RoleUser, password, acct.DeviceCode)
}

// Logout ends the session. It is safe to call for an ended session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Close(ctx, sessionID)
}

func (s *AuthService) issue(ctx context.Context, username, role, password, deviceCode string) (*ports.LoginResult, error) {
	m, err := s.sessions.Open(ctx, username, role, password)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	token, err := s.generateToken(username, role, m.ID(), expiresAt)
	if err != nil {
		m.Invalidate(domain.ReasonLoggedOut)
		return nil, err
	}

	return &ports.LoginResult{
		Token:      token,
		ExpiresAt:  expiresAt,
		Principal:  domain.Principal{Username: username, Role: role, SessionID: m.ID()},
		DeviceCode: deviceCode,
	}, nil
}

func (s *AuthService) generateToken(username, role, sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  username,
		"role": role,
		"sid":  sessionID,
		"exp":  expiresAt.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}
