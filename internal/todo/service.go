// Package todo orchestrates registration, login and identity-scoped item
// operations on top of the credential and item stores. It is shared by the
// HTTP and gRPC transports; both read the caller's identity from the context
// populated by the auth middleware or interceptor.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"todoService/internal/auth"
	"todoService/models"
	"todoService/repository"
)

var (
	// ErrInvalidCredentials is returned by Login when no user matches.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned when required fields are missing.
	ErrInvalidInput = errors.New("invalid input")
)

// Options tune a Service.
type Options struct {
	// OwnerScopedMutations makes UpdateItem and DeleteItem treat items owned by
	// other users as not found. Off by default: any authenticated caller may
	// update or delete any item by id.
	OwnerScopedMutations bool
	Logger               logrus.FieldLogger
}

// Service bundles the stores and the token service.
type Service struct {
	users       repository.UserRepositoryI
	items       repository.ItemRepositoryI
	tokens      *auth.TokenService
	ownerScoped bool
	logger      logrus.FieldLogger
}

// NewService wires a Service.
func NewService(users repository.UserRepositoryI, items repository.ItemRepositoryI, tokens *auth.TokenService, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		users:       users,
		items:       items,
		tokens:      tokens,
		ownerScoped: opts.OwnerScopedMutations,
		logger:      logger,
	}
}

// OwnerScoped reports whether update and delete are restricted to the owner.
func (s *Service) OwnerScoped() bool { return s.ownerScoped }

// Register creates a user. The password hash is stored as supplied.
func (s *Service) Register(ctx context.Context, username, passwordHash string) (*models.User, error) {
	if strings.TrimSpace(username) == "" || passwordHash == "" {
		return nil, fmt.Errorf("%w: username and passwordHash are required", ErrInvalidInput)
	}
	u, err := s.users.Register(ctx, username, passwordHash)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("user registered")
	return u, nil
}

// Login returns a signed token for the user matching both fields exactly.
func (s *Service) Login(ctx context.Context, username, passwordHash string) (string, error) {
	if username == "" || passwordHash == "" {
		return "", ErrInvalidCredentials
	}
	u, err := s.users.FindByCredentials(ctx, username, passwordHash)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return "", ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

// ListItems returns the caller's items.
func (s *Service) ListItems(ctx context.Context) ([]models.Item, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	return s.items.ListByOwner(ctx, p.UserID)
}

// CreateItem stores a new item owned by the caller.
func (s *Service) CreateItem(ctx context.Context, name string, completed bool) (*models.Item, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	return s.items.Create(ctx, &models.Item{Name: name, Completed: completed}, p.UserID)
}

// UpdateItem applies patch to the item with the given id.
func (s *Service) UpdateItem(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if s.ownerScoped {
		return s.items.UpdateByOwner(ctx, id, p.UserID, patch)
	}
	return s.items.UpdateByID(ctx, id, patch)
}

// DeleteItem removes the item with the given id.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if s.ownerScoped {
		return s.items.DeleteByOwner(ctx, id, p.UserID)
	}
	return s.items.DeleteByID(ctx, id)
}
