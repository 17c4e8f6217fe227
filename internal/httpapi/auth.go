package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"glowsalon/backend/internal/domain"
)

const (
	tokenIssuer       = "glowsalon"
	examSessionTTL    = 2 * time.Hour
	defaultTokenTTL   = 8 * time.Hour
	minPasswordLength = 8
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errTooManyAttempts    = errors.New("too many attempts")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository the auth manager needs.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager checks passwords against a cached copy of the user table and
// issues HS256 access tokens for staff logins and exam candidates.
type AuthManager struct {
	mu       sync.RWMutex
	secret   []byte
	tokenTTL time.Duration
	store    UserStore
	logins   map[string]login
	now      func() time.Time
}

type login struct {
	hash    string
	role    string
	staffID string
	active  bool
}

type salonClaims struct {
	jwtlib.RegisteredClaims
	Role       string `json:"role"`
	StaffID    string `json:"staff_id,omitempty"`
	ExamCodeID string `json:"exam_code_id,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	manager := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    users,
		logins:   make(map[string]login),
		now:      func() time.Time { return time.Now().UTC() },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.reload(ctx)
	return manager
}

// Login checks a username and password and issues an access token.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	// Accounts created through the staff screen appear without a restart.
	a.reload(ctx)

	username := normalizeUsername(req.Username)
	entry, ok := a.lookup(username)
	if !ok || !passwordMatches(entry.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !entry.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(salonClaims{Role: entry.role, StaffID: entry.staffID}, username, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        entry.role,
		StaffID:     entry.staffID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ChangePassword replaces a user's password after re-checking the current
// one.
func (a *AuthManager) ChangePassword(ctx context.Context, username string, current string, next string) error {
	a.reload(ctx)

	username = normalizeUsername(username)
	entry, ok := a.lookup(username)
	if !ok || !passwordMatches(entry.hash, current) {
		return errInvalidCredentials
	}
	if len(next) < minPasswordLength {
		return errors.New("new password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.UpdateUserPassword(ctx, username, string(hash)); err != nil {
			return err
		}
	}

	a.mu.Lock()
	entry.hash = string(hash)
	a.logins[username] = entry
	a.mu.Unlock()
	return nil
}

// IssueExamToken grants a candidate a short-lived token scoped to the exam
// code they redeemed.
func (a *AuthManager) IssueExamToken(code domain.ExamCode) (domain.ExamAccess, error) {
	expiresAt := a.now().Add(examSessionTTL)
	token, err := a.sign(salonClaims{Role: domain.RoleCandidate, ExamCodeID: code.ID}, code.UsedBy, expiresAt)
	if err != nil {
		return domain.ExamAccess{}, err
	}
	return domain.ExamAccess{
		ExamCodeID:    code.ID,
		CandidateName: code.UsedBy,
		AccessToken:   token,
		ExpiresAt:     expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims salonClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims,
		func(*jwtlib.Token) (any, error) { return a.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{
		Username:   claims.Subject,
		Role:       claims.Role,
		StaffID:    claims.StaffID,
		ExamCodeID: claims.ExamCodeID,
	}, nil
}

func (a *AuthManager) sign(claims salonClaims, subject string, expiresAt time.Time) (string, error) {
	claims.RegisteredClaims = jwtlib.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwtlib.NewNumericDate(a.now()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) lookup(username string) (login, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.logins[username]
	return entry, ok
}

// reload refreshes the login cache from the user store. Rows still holding
// a plain-text password are hashed and written back.
func (a *AuthManager) reload(ctx context.Context) {
	if a.store == nil {
		return
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return
	}

	fresh := make(map[string]login, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isBcryptHash(hash) {
			upgraded, err := bcrypt.GenerateFromPassword([]byte(hash), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			hash = string(upgraded)
			_ = a.store.UpdateUserPassword(ctx, username, hash)
		}
		fresh[username] = login{hash: hash, role: user.Role, staffID: user.StaffID, active: user.Active}
	}
	if len(fresh) == 0 {
		return
	}

	a.mu.Lock()
	for username, entry := range fresh {
		a.logins[username] = entry
	}
	a.mu.Unlock()
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func passwordMatches(hash string, input string) bool {
	if strings.TrimSpace(input) == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
