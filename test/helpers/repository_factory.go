package helpers

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/andrescamacho/takaro-connector/internal/adapters/persistence"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// PlainSealer marks values instead of encrypting them, so tests can inspect
// what reached the database.
type PlainSealer struct{}

const plainPrefix = "plain:"

func (PlainSealer) Seal(plaintext []byte) (string, error) {
	return plainPrefix + string(plaintext), nil
}

func (PlainSealer) Open(ciphertext string) ([]byte, error) {
	return []byte(strings.TrimPrefix(ciphertext, plainPrefix)), nil
}

// TestRepositories holds real GORM repositories over one test database
type TestRepositories struct {
	DB          *gorm.DB
	GameServers *persistence.GormGameServerRepository
	Functions   *persistence.GormFunctionRepository
	Assignments *persistence.GormAssignmentRepository
	Modules     *persistence.GormModuleRepository
	Events      *persistence.GormEventRepository
	Executions  *persistence.GormExecutionRepository
}

// NewTestRepositories wires every repository to a fresh in-memory database.
// clock is used for timestamps (usually a MockClock in tests).
func NewTestRepositories(t *testing.T, clock shared.Clock) *TestRepositories {
	db := NewTestDB(t)
	return &TestRepositories{
		DB:          db,
		GameServers: persistence.NewGormGameServerRepository(db, PlainSealer{}, clock),
		Functions:   persistence.NewGormFunctionRepository(db),
		Assignments: persistence.NewGormAssignmentRepository(db),
		Modules:     persistence.NewGormModuleRepository(db, clock),
		Events:      persistence.NewGormEventRepository(db, clock),
		Executions:  persistence.NewGormExecutionRepository(db),
	}
}
