package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sitework/internal/domain"
	"sitework/internal/repo"
	"sitework/internal/session"
)

// Token type claims. Refresh tokens are only good for rotation, access
// tokens only for API calls.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("user is not active")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims is the JWT payload minted by this service.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	TokenType string `json:"type,omitempty"`
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Service issues and rotates credentials. Refresh tokens are single use:
// each rotation revokes the presented session and registers a new one.
type Service struct {
	Repo       repo.Repo
	Sessions   *session.Store
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Register creates an account with a bcrypt-hashed password.
func (s Service) Register(ctx context.Context, email, password, role string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}
	if len(password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	switch role {
	case domain.RoleUser, domain.RoleManager, domain.RoleRoot:
	case "":
		role = domain.RoleUser
	default:
		return domain.User{}, fmt.Errorf("invalid role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Login verifies credentials and mints a token pair.
func (s Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !u.Active {
		return TokenPair{}, ErrInactiveUser
	}
	return s.mint(ctx, u)
}

// Refresh rotates a refresh token: the presented session is revoked and a
// new pair minted. A token whose session is gone is rejected.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	userID, err := s.Sessions.Lookup(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if userID == "" || userID != claims.Subject {
		return TokenPair{}, ErrInvalidToken
	}
	u, err := s.Repo.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !u.Active {
		return TokenPair{}, ErrInactiveUser
	}
	if err := s.Sessions.Revoke(ctx, claims.ID); err != nil {
		return TokenPair{}, err
	}
	return s.mint(ctx, u)
}

// Logout revokes the session behind a refresh token.
func (s Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return err
	}
	return s.Sessions.Revoke(ctx, claims.ID)
}

func (s Service) mint(ctx context.Context, u domain.User) (TokenPair, error) {
	now := s.now()
	access, err := s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		},
		Role:      u.Role,
		TokenType: TokenAccess,
	})
	if err != nil {
		return TokenPair{}, err
	}
	sessionID := uuid.New().String()
	refresh, err := s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.RefreshTTL)),
		},
		TokenType: TokenRefresh,
	})
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Sessions.Save(ctx, sessionID, u.ID, s.RefreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (s Service) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s Service) parse(tokenString, wantType string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != wantType {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
