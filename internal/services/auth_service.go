package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ripple/config"
	"ripple/internal/domain"
	"ripple/internal/repository"
	ripple_errors "ripple/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthService issues and verifies the access tokens that carry the
// authenticated principal. The messaging core itself only ever sees the
// principal id extracted by the middleware.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryMin) * time.Minute,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Identity string // username or email
	Password string
}

type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	User        domain.Profile `json:"user"`
}

type AccessClaims struct {
	UserID string `json:"sub"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResponse, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" || in.Email == "" || len(in.Password) < 8 {
		return AuthResponse{}, fmt.Errorf("%w: username, email and a password of at least 8 characters are required", ripple_errors.ErrInvalidInput)
	}

	if _, err := s.userRepo.GetByUsername(ctx, in.Username); err == nil {
		return AuthResponse{}, fmt.Errorf("%w: username taken", ripple_errors.ErrAlreadyExists)
	} else if !errors.Is(err, ripple_errors.ErrNotFound) {
		return AuthResponse{}, err
	}
	if _, err := s.userRepo.GetByEmail(ctx, in.Email); err == nil {
		return AuthResponse{}, fmt.Errorf("%w: email taken", ripple_errors.ErrAlreadyExists)
	} else if !errors.Is(err, ripple_errors.ErrNotFound) {
		return AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	now := time.Now()
	newUser := &domain.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		return AuthResponse{}, err
	}

	return s.respondWithToken(*newUser)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResponse, error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" || in.Password == "" {
		return AuthResponse{}, fmt.Errorf("%w: identity and password are required", ripple_errors.ErrInvalidInput)
	}

	u, err := s.userRepo.GetByUsername(ctx, identity)
	if errors.Is(err, ripple_errors.ErrNotFound) {
		u, err = s.userRepo.GetByEmail(ctx, strings.ToLower(identity))
	}
	if err != nil {
		if errors.Is(err, ripple_errors.ErrNotFound) {
			return AuthResponse{}, ripple_errors.ErrUnauthorized
		}
		return AuthResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return AuthResponse{}, ripple_errors.ErrUnauthorized
	}

	return s.respondWithToken(u)
}

func (s *AuthService) respondWithToken(u domain.User) (AuthResponse, error) {
	token, err := s.GenerateAccessToken(u.ID)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		User:        u.Profile(),
	}, nil
}

func (s *AuthService) GenerateAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, ripple_errors.ErrUnauthorized
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ripple_errors.ErrUnauthorized
	}
	return claims, nil
}
