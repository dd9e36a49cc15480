package repository

import (
	"context"

	"todoService/models"
)

// UserRepositoryI is the credential store consumed by the login and register flows.
type UserRepositoryI interface {
	Register(ctx context.Context, username, passwordHash string) (*models.User, error)
	FindByCredentials(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ItemRepositoryI is the item store. Listing and creation are scoped by owner;
// UpdateByID and DeleteByID address items by id alone.
type ItemRepositoryI interface {
	ListByOwner(ctx context.Context, userID int64) ([]models.Item, error)
	Create(ctx context.Context, it *models.Item, ownerUserID int64) (*models.Item, error)
	GetByID(ctx context.Context, id int64) (*models.Item, error)
	UpdateByID(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error)
	DeleteByID(ctx context.Context, id int64) error
	UpdateByOwner(ctx context.Context, id, ownerUserID int64, patch models.ItemPatch) (*models.Item, error)
	DeleteByOwner(ctx context.Context, id, ownerUserID int64) error
}

var (
	_ UserRepositoryI = (*UserRepository)(nil)
	_ ItemRepositoryI = (*ItemRepository)(nil)
)
