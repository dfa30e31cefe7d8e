package repository

import (
	"context"

	"agromart/internal/domain/entity"
)

// UserRepository is the read-only view of the user-management
// collaborator needed by the chat core.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
