package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// GormFunctionRepository implements function.Repository using GORM
type GormFunctionRepository struct {
	db *gorm.DB
}

// NewGormFunctionRepository creates a new GORM function repository
func NewGormFunctionRepository(db *gorm.DB) *GormFunctionRepository {
	return &GormFunctionRepository{db: db}
}

// Save creates or updates a function
func (r *GormFunctionRepository) Save(ctx context.Context, fn *function.Function) error {
	model := &FunctionModel{
		ID:        fn.ID,
		Name:      fn.Name,
		Code:      fn.Code,
		CreatedAt: fn.CreatedAt,
		UpdatedAt: fn.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save function: %w", err)
	}
	return nil
}

// FindByID retrieves a function by id
func (r *GormFunctionRepository) FindByID(ctx context.Context, id string) (*function.Function, error) {
	var model FunctionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("function", id)
		}
		return nil, fmt.Errorf("failed to find function: %w", err)
	}
	return modelToFunction(&model), nil
}

// FindByIDs retrieves the functions among ids that exist, ordered by id
func (r *GormFunctionRepository) FindByIDs(ctx context.Context, ids []string) ([]*function.Function, error) {
	if len(ids) == 0 {
		return []*function.Function{}, nil
	}

	var models []FunctionModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find functions: %w", err)
	}

	fns := make([]*function.Function, 0, len(models))
	for i := range models {
		fns = append(fns, modelToFunction(&models[i]))
	}
	return fns, nil
}

// Delete removes a function together with its assignments
func (r *GormFunctionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("function_id = ?", id).Delete(&FunctionAssignmentModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignments of function %s: %w", id, err)
		}
		result := tx.Where("id = ?", id).Delete(&FunctionModel{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete function: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("function", id)
		}
		return nil
	})
}

func modelToFunction(model *FunctionModel) *function.Function {
	return &function.Function{
		ID:        model.ID,
		Name:      model.Name,
		Code:      model.Code,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// GormAssignmentRepository implements function.AssignmentRepository using GORM
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GORM assignment repository
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

// Insert stores one assignment row
func (r *GormAssignmentRepository) Insert(ctx context.Context, a *function.Assignment) error {
	model := &FunctionAssignmentModel{
		FunctionID: a.FunctionID(),
		CommandID:  a.CommandID(),
		CronJobID:  a.CronJobID(),
		HookID:     a.HookID(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// Delete removes the rows matching an assignment's function and owner
func (r *GormAssignmentRepository) Delete(ctx context.Context, a *function.Assignment) error {
	owner := a.Owner()
	column, err := ownerColumn(owner.Kind)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Where("function_id = ? AND "+column+" = ?", a.FunctionID(), owner.ID).
		Delete(&FunctionAssignmentModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete assignment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("assignment", owner.ID+"/"+a.FunctionID())
	}
	return nil
}

// FunctionIDsForItem evaluates the owner match across all three columns,
// since callers do not know which kind itemID is.
func (r *GormAssignmentRepository) FunctionIDsForItem(ctx context.Context, itemID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&FunctionAssignmentModel{}).
		Where("command_id = ? OR cron_job_id = ? OR hook_id = ?", itemID, itemID, itemID).
		Distinct().
		Order("function_id").
		Pluck("function_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve functions for %s: %w", itemID, err)
	}
	return ids, nil
}

// DeleteByItem removes every assignment owned by itemID
func (r *GormAssignmentRepository) DeleteByItem(ctx context.Context, itemID string) error {
	err := r.db.WithContext(ctx).
		Where("command_id = ? OR cron_job_id = ? OR hook_id = ?", itemID, itemID, itemID).
		Delete(&FunctionAssignmentModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete assignments of %s: %w", itemID, err)
	}
	return nil
}

func ownerColumn(kind function.ItemKind) (string, error) {
	switch kind {
	case function.ItemKindCommand:
		return "command_id", nil
	case function.ItemKindCronJob:
		return "cron_job_id", nil
	case function.ItemKindHook:
		return "hook_id", nil
	default:
		return "", shared.NewValidationError("kind", fmt.Sprintf("unknown item kind %q", kind))
	}
}
