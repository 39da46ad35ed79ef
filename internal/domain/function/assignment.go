package function

import (
	"fmt"
	"strings"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// ItemKind names the trigger kinds a function can be assigned to
type ItemKind string

const (
	ItemKindCronJob ItemKind = "cronjob"
	ItemKindHook    ItemKind = "hook"
	ItemKindCommand ItemKind = "command"
)

// ParseItemKind accepts the kind names case-insensitively
func ParseItemKind(s string) (ItemKind, error) {
	switch k := ItemKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ItemKindCronJob, ItemKindHook, ItemKindCommand:
		return k, nil
	default:
		return "", shared.NewValidationError("kind", fmt.Sprintf("unknown item kind %q, expected cronjob, hook or command", s))
	}
}

// Owner is the single trigger an assignment belongs to
type Owner struct {
	Kind ItemKind
	ID   string
}

// Assignment links one function to exactly one trigger. The only ways to
// obtain one are NewAssignment and ReconstructAssignment, which both reject
// anything but a single owner.
type Assignment struct {
	functionID string
	owner      Owner
}

func NewAssignment(kind ItemKind, itemID, functionID string) (*Assignment, error) {
	if _, err := ParseItemKind(string(kind)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, shared.NewValidationError("itemId", "must not be empty")
	}
	if strings.TrimSpace(functionID) == "" {
		return nil, shared.NewValidationError("functionId", "must not be empty")
	}
	return &Assignment{
		functionID: functionID,
		owner:      Owner{Kind: ItemKind(strings.ToLower(string(kind))), ID: itemID},
	}, nil
}

// ReconstructAssignment rebuilds an assignment from its three nullable owner
// columns as stored.
func ReconstructAssignment(functionID string, commandID, cronJobID, hookID *string) (*Assignment, error) {
	var owners []Owner
	if commandID != nil {
		owners = append(owners, Owner{Kind: ItemKindCommand, ID: *commandID})
	}
	if cronJobID != nil {
		owners = append(owners, Owner{Kind: ItemKindCronJob, ID: *cronJobID})
	}
	if hookID != nil {
		owners = append(owners, Owner{Kind: ItemKindHook, ID: *hookID})
	}
	if len(owners) != 1 {
		return nil, shared.NewValidationError("owner", fmt.Sprintf("assignment must have exactly one owner, got %d", len(owners)))
	}
	return NewAssignment(owners[0].Kind, owners[0].ID, functionID)
}

func (a *Assignment) FunctionID() string { return a.functionID }

func (a *Assignment) Owner() Owner { return a.owner }

func (a *Assignment) CommandID() *string { return a.ownerID(ItemKindCommand) }

func (a *Assignment) CronJobID() *string { return a.ownerID(ItemKindCronJob) }

func (a *Assignment) HookID() *string { return a.ownerID(ItemKindHook) }

func (a *Assignment) ownerID(kind ItemKind) *string {
	if a.owner.Kind != kind {
		return nil
	}
	id := a.owner.ID
	return &id
}
