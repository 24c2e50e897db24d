package contact

import (
	"context"
)

// Directory is the read-only view of the contact directory used by the alert engine.
// Contact CRUD lives with the directory owner; the engine only reads fresh snapshots.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*Contact, error)
	ListByUser(ctx context.Context, userID string) ([]*Contact, error)
}
