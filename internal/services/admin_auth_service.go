package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"biodata/internal/authz"
	"biodata/internal/models"
	"biodata/internal/repositories"
)

type AdminStore interface {
	Create(ctx context.Context, u *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Count(ctx context.Context) (int, error)
}

type LoginResult struct {
	Admin     *models.AdminUser
	Token     string
	ExpiresAt time.Time
}

type AdminAuthService struct {
	Repo     AdminStore
	Secret   []byte
	TokenTTL time.Duration

	now func() time.Time
}

func NewAdminAuthService(repo AdminStore, secret string, ttl time.Duration) *AdminAuthService {
	return &AdminAuthService{Repo: repo, Secret: []byte(secret), TokenTTL: ttl, now: time.Now}
}

// Login checks credentials and issues a session token. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *AdminAuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	u, err := s.Repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logrus.WithField("username", username).Info("[admin][login] unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logrus.WithField("admin_id", u.ID).Info("[admin][login] password mismatch")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := authz.IssueToken(s.Secret, u.ID, u.Username, u.Role, s.TokenTTL, s.now())
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	logrus.WithFields(logrus.Fields{"admin_id": u.ID, "role": authz.RoleName(u.Role)}).Info("[admin][login] ok")
	return &LoginResult{Admin: u, Token: token, ExpiresAt: exp}, nil
}

func (s *AdminAuthService) CreateAdmin(ctx context.Context, username, password string, role int) (*models.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return nil, fmt.Errorf("%w: username and a password of at least 8 characters are required", ErrValidation)
	}
	if authz.RoleName(role) == "unknown" {
		return nil, fmt.Errorf("%w: unknown role %d", ErrValidation, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt generate: %w", err)
	}
	u := &models.AdminUser{Username: username, PasswordHash: string(hash), Role: role}
	if err := s.Repo.Create(ctx, u); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: admin %q already exists", ErrConflict, username)
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return u, nil
}

// EnsureBootstrap creates the first admin when none exist and credentials are configured.
func (s *AdminAuthService) EnsureBootstrap(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil
	}
	n, err := s.Repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.CreateAdmin(ctx, username, password, authz.RoleAdmin); err != nil {
		return err
	}
	logrus.WithField("username", username).Info("[admin][bootstrap] created first admin")
	return nil
}
