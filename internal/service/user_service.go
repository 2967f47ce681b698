package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/pkg/database"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailExists(ctx context.Context, q sqlx.ExtContext, email, excludeID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, user *models.User) error
}

// UserService manages user reference records. Credentials and sessions
// live in the external auth service.
type UserService struct {
	runner  database.Runner
	repo    userRepository
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(runner database.Runner, repo userRepository, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{runner: runner, repo: repo, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// List returns all users.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

// GetByID returns one user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// Create registers a user record. Emails are unique.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FullName:  req.FullName,
		Role:      models.UserRole(req.Role),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		exists, err := s.repo.EmailExists(ctx, q, req.Email, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
		}
		if err := s.repo.Insert(ctx, q, user); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityUser, user.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: user})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityUser, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "user_created", Scope: realtime.ScopeGlobal, Data: user})
	return user, nil
}
