package repository

import (
	"context"

	"agromart/internal/domain/entity"
)

// ListingRepository is the read-only view of the listing service used for
// conversation previews and notification content.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
}
