package function

import "context"

// Repository persists function records
type Repository interface {
	Save(ctx context.Context, fn *Function) error

	// FindByID returns a shared.NotFoundError when the function does not exist
	FindByID(ctx context.Context, id string) (*Function, error)

	FindByIDs(ctx context.Context, ids []string) ([]*Function, error)

	// Delete removes the function and its assignments
	Delete(ctx context.Context, id string) error
}

// AssignmentRepository persists function-to-trigger edges
type AssignmentRepository interface {
	Insert(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, a *Assignment) error

	// FunctionIDsForItem returns the distinct function ids assigned to itemID
	// through any of the command, cron job or hook owner columns.
	FunctionIDsForItem(ctx context.Context, itemID string) ([]string, error)

	// DeleteByItem removes every assignment owned by itemID
	DeleteByItem(ctx context.Context, itemID string) error
}
