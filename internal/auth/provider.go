// Package auth is the single sign-in provider for the API: email/password
// accounts, Google sign-in, token refresh and sign-out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"resume-tailor/internal/profiles"
	sharedauth "resume-tailor/internal/shared/auth"
	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/users"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit
	revokedPrefix  = "auth:revoked:"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be 8 to 72 characters")
	ErrRevoked            = errors.New("token revoked")
)

// Provider is the auth surface the rest of the API depends on.
type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	GetToken(ctx context.Context, token string) (Session, error)
	CurrentUser(ctx context.Context, token string) (users.User, error)
	VerifyToken(ctx context.Context, token string) (sharedauth.Claims, error)
}

// ProfileEnsurer creates the billing profile for a new account.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, id, email, fullName string) (profiles.Profile, error)
}

type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

// Session is an issued bearer token and the user it belongs to.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      users.User `json:"user"`
}

// Service implements Provider on top of the users repo and an HS256 signer.
// Revoked token ids are kept in the KV store until the token would expire.
type Service struct {
	Users    users.Repo
	Signer   *sharedauth.Signer
	Revoked  kv.Store
	Profiles ProfileEnsurer

	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo users.Repo, signer *sharedauth.Signer, revoked kv.Store, prof ProfileEnsurer) *Service {
	return &Service{
		Users:    repo,
		Signer:   signer,
		Revoked:  revoked,
		Profiles: prof,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	email := strings.TrimSpace(in.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return Session{}, ErrInvalidEmail
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLen || len(in.Password) > maxPasswordLen {
		return Session{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := users.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     users.ProviderPassword,
		FullName:     strings.TrimSpace(in.FullName),
	}
	if err := s.Users.Create(ctx, user); err != nil {
		return Session{}, err
	}
	telemetry.Info("auth.signup", map[string]any{"user_id": user.ID})
	return s.Establish(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, users.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if user.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.Establish(ctx, user)
}

// SignOut revokes the token. Signing out with an already invalid token is a
// no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.Signer.Verify(token)
	if err != nil {
		return nil
	}
	return s.revoke(ctx, claims)
}

// GetToken exchanges a valid token for a fresh one and revokes the old one.
func (s *Service) GetToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.Users.GetByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.issue(user, claims.Picture)
	if err != nil {
		return Session{}, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) CurrentUser(ctx context.Context, token string) (users.User, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return users.User{}, err
	}
	return s.Users.GetByID(ctx, claims.Sub)
}

// VerifyToken checks the signature, expiry and revocation list.
func (s *Service) VerifyToken(ctx context.Context, token string) (sharedauth.Claims, error) {
	claims, err := s.Signer.Verify(token)
	if err != nil {
		return sharedauth.Claims{}, err
	}
	if s.Revoked != nil && claims.ID != "" {
		_, revoked, err := s.Revoked.Get(ctx, revokedPrefix+claims.ID)
		if err != nil {
			return sharedauth.Claims{}, err
		}
		if revoked {
			return sharedauth.Claims{}, fmt.Errorf("%w: %w", sharedauth.ErrInvalidToken, ErrRevoked)
		}
	}
	return claims, nil
}

// Establish makes sure the account has a billing profile and issues a token.
func (s *Service) Establish(ctx context.Context, user users.User) (Session, error) {
	if s.Profiles != nil {
		if _, err := s.Profiles.Ensure(ctx, user.ID, user.Email, user.FullName); err != nil {
			return Session{}, err
		}
	}
	return s.issue(user, user.PictureURL)
}

func (s *Service) issue(user users.User, picture string) (Session, error) {
	token, claims, err := s.Signer.Issue(sharedauth.Claims{
		Sub:     user.ID,
		Email:   user.Email,
		Name:    user.FullName,
		Picture: picture,
	})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt(), User: user}, nil
}

func (s *Service) revoke(ctx context.Context, claims sharedauth.Claims) error {
	if s.Revoked == nil || claims.ID == "" {
		return nil
	}
	ttl := claims.ExpiresAt().Sub(s.now())
	if claims.Exp == 0 || ttl <= 0 {
		ttl = time.Minute
	}
	return s.Revoked.Set(ctx, revokedPrefix+claims.ID, "1", ttl)
}

var _ Provider = (*Service)(nil)
