package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/takaro-connector/internal/application/command"
	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/database"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

// triggerContext holds state for command matching and trigger resolution
// scenarios. Both features share the module and assignment setup.
type triggerContext struct {
	repos    *helpers.TestRepositories
	backend  *helpers.CaptureBackend
	fabric   *queue.Fabric
	resolver *trigger.Resolver
	commands *command.Service

	domainID     string
	gameServerID string
	modules      map[string]*module.Module

	err error
}

func (tc *triggerContext) reset() {
	tc.repos = helpers.NewTestRepositories(nil, nil)
	tc.backend = helpers.NewCaptureBackend()
	tc.fabric = queue.NewFabric(tc.backend)
	tc.resolver = trigger.NewResolver(tc.repos.Assignments, tc.repos.Functions, nil)
	tc.commands = command.NewService(tc.repos.Modules, tc.repos.GameServers, tc.resolver, tc.fabric, module.DefaultCommandPrefix)
	tc.domainID, tc.gameServerID = "", ""
	tc.modules = make(map[string]*module.Module)
	tc.err = nil
}

func (tc *triggerContext) close() {
	_ = database.Close(tc.repos.DB)
}

// ============================================================================
// Setup
// ============================================================================

func (tc *triggerContext) gameServerOfDomainWithModuleInstalled(gsID, domainID, moduleID string) error {
	ctx := context.Background()
	tc.domainID, tc.gameServerID = domainID, gsID

	if err := tc.repos.GameServers.Save(ctx, &gameserver.GameServer{
		ID: gsID, DomainID: domainID, Name: gsID, Type: gameserver.GameTypeMock,
		ConnectionInfo: json.RawMessage(`{}`), Enabled: true,
	}); err != nil {
		return err
	}

	m := &module.Module{ID: moduleID, Name: moduleID}
	tc.modules[moduleID] = m
	if err := tc.repos.Modules.Save(ctx, m); err != nil {
		return err
	}
	return tc.repos.Modules.Install(ctx, &module.Installation{
		ID: "inst-" + moduleID, ModuleID: moduleID, GameServerID: gsID, DomainID: domainID,
	})
}

func (tc *triggerContext) moduleHasTheCommands(moduleID string, table *godog.Table) error {
	m, err := tc.module(moduleID)
	if err != nil {
		return err
	}
	for _, row := range table.Rows[1:] {
		enabled, err := strconv.ParseBool(cellValue(table, row, "enabled"))
		if err != nil {
			return fmt.Errorf("enabled column: %w", err)
		}
		m.Commands = append(m.Commands, &module.Command{
			ID:      cellValue(table, row, "id"),
			Name:    cellValue(table, row, "trigger"),
			Trigger: cellValue(table, row, "trigger"),
			Enabled: enabled,
		})
	}
	return tc.repos.Modules.Save(context.Background(), m)
}

func (tc *triggerContext) commandTakesTheArguments(commandID string, table *godog.Table) error {
	for _, m := range tc.modules {
		for _, cmd := range m.Commands {
			if cmd.ID != commandID {
				continue
			}
			for _, row := range table.Rows[1:] {
				pos, err := strconv.Atoi(cellValue(table, row, "position"))
				if err != nil {
					return fmt.Errorf("position column: %w", err)
				}
				arg := module.Argument{
					Name:     cellValue(table, row, "name"),
					Type:     module.ArgumentType(cellValue(table, row, "type")),
					Position: pos,
				}
				if def := cellValue(table, row, "default"); def != "" {
					arg.DefaultValue = &def
				}
				cmd.Arguments = append(cmd.Arguments, arg)
			}
			return tc.repos.Modules.Save(context.Background(), m)
		}
	}
	return fmt.Errorf("unknown command %s", commandID)
}

func (tc *triggerContext) moduleHasACronJobRunning(moduleID, cronJobID, expr string) error {
	m, err := tc.module(moduleID)
	if err != nil {
		return err
	}
	m.CronJobs = append(m.CronJobs, &module.CronJob{ID: cronJobID, Name: cronJobID, TemporalValue: expr})
	return tc.repos.Modules.Save(context.Background(), m)
}

func (tc *triggerContext) moduleHasAHook(moduleID, eventType, hookID string) error {
	m, err := tc.module(moduleID)
	if err != nil {
		return err
	}
	m.Hooks = append(m.Hooks, &module.Hook{ID: hookID, Name: hookID, EventType: gameserver.EventType(eventType)})
	return tc.repos.Modules.Save(context.Background(), m)
}

func (tc *triggerContext) module(id string) (*module.Module, error) {
	m, ok := tc.modules[id]
	if !ok {
		return nil, fmt.Errorf("unknown module %s", id)
	}
	return m, nil
}

func (tc *triggerContext) theFunctionsExist(list string) error {
	for _, id := range splitList(list) {
		if err := tc.saveFunction(id); err != nil {
			return err
		}
	}
	return nil
}

func (tc *triggerContext) saveFunction(id string) error {
	fn, err := function.NewFunction(id, id, "print('"+id+"')", nil)
	if err != nil {
		return err
	}
	return tc.repos.Functions.Save(context.Background(), fn)
}

func (tc *triggerContext) functionIsAssignedTo(functionID, kind, itemID string) error {
	ctx := context.Background()
	if _, err := tc.repos.Functions.FindByID(ctx, functionID); err != nil {
		var notFound *shared.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := tc.saveFunction(functionID); err != nil {
			return err
		}
	}
	return tc.resolver.Assign(ctx, kindFromPhrase(kind), itemID, functionID)
}

func (tc *triggerContext) functionIsAssignedToAKind(functionID, kind, itemID string) error {
	k, err := function.ParseItemKind(kind)
	if err != nil {
		tc.err = err
		return nil
	}
	tc.err = tc.resolver.Assign(context.Background(), k, itemID, functionID)
	return nil
}

func (tc *triggerContext) functionIsUnassignedFrom(functionID, kind, itemID string) error {
	return tc.resolver.Unassign(context.Background(), kindFromPhrase(kind), itemID, functionID)
}

func (tc *triggerContext) functionIsDeleted(functionID string) error {
	return tc.repos.Functions.Delete(context.Background(), functionID)
}

func (tc *triggerContext) gameServerUsesTheCommandPrefix(gsID, prefix string) error {
	return tc.repos.GameServers.SetSetting(context.Background(), gsID, gameserver.SettingCommandPrefix, prefix)
}

func kindFromPhrase(phrase string) function.ItemKind {
	switch phrase {
	case "cron job":
		return function.ItemKindCronJob
	case "hook":
		return function.ItemKindHook
	default:
		return function.ItemKindCommand
	}
}

// ============================================================================
// Actions
// ============================================================================

func (tc *triggerContext) playerSaysOnGameServer(player, msg, gsID string) error {
	job := queue.EventJob{
		ID:           "ev-" + strconv.Itoa(tc.backend.Count(queue.Commands)),
		Type:         gameserver.EventChatMessage,
		Event:        gameserver.NewChatMessage(gameserver.Player{GameID: player, Name: player}, gameserver.ChatChannelGlobal, msg, time.Now()),
		DomainID:     tc.domainID,
		GameServerID: gsID,
	}
	_, tc.err = tc.commands.HandleChatMessage(context.Background(), job)
	return nil
}

func (tc *triggerContext) commandFiresOnGameServer(commandID, gsID string) error {
	_, err := tc.resolver.FanOut(context.Background(), tc.fabric.Commands, queue.ExecutionJob{
		DomainID:     tc.domainID,
		GameServerID: gsID,
		ItemKind:     function.ItemKindCommand,
		ItemID:       commandID,
		Data:         map[string]any{},
	})
	return err
}

// ============================================================================
// Assertions
// ============================================================================

func (tc *triggerContext) commandJobsShouldBeEnqueued(n int) error {
	if tc.err != nil {
		return fmt.Errorf("unexpected error: %w", tc.err)
	}
	if got := tc.backend.Count(queue.Commands); got != n {
		return fmt.Errorf("expected %d command jobs, got %d", n, got)
	}
	return nil
}

func (tc *triggerContext) theCommandJobForShouldCarryTheArguments(functionID string, table *godog.Table) error {
	jobs, err := helpers.DecodeJobs[queue.ExecutionJob](tc.backend, queue.Commands)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.FunctionID != functionID {
			continue
		}
		args, ok := job.Data["arguments"].(map[string]any)
		if !ok {
			return fmt.Errorf("job %s has no arguments map: %v", job.ID, job.Data)
		}
		for _, row := range table.Rows[1:] {
			name, want := cellValue(table, row, "name"), cellValue(table, row, "value")
			if got := fmt.Sprint(args[name]); got != want {
				return fmt.Errorf("argument %s: expected %q, got %q", name, want, got)
			}
		}
		return nil
	}
	return fmt.Errorf("no command job for function %s", functionID)
}

func (tc *triggerContext) matchingShouldFailWithAValidationErrorOn(field string) error {
	var validation *shared.ValidationError
	if !errors.As(tc.err, &validation) {
		return fmt.Errorf("expected a validation error, got %v", tc.err)
	}
	if validation.Field != field {
		return fmt.Errorf("expected the error on %q, got %q", field, validation.Field)
	}
	tc.err = nil
	return nil
}

func (tc *triggerContext) theAssignmentShouldFailWithAValidationError() error {
	var validation *shared.ValidationError
	if !errors.As(tc.err, &validation) {
		return fmt.Errorf("expected a validation error, got %v", tc.err)
	}
	tc.err = nil
	return nil
}

func (tc *triggerContext) theFunctionsRelatedToShouldBe(itemID, list string) error {
	got, err := tc.resolver.RelatedFunctionIDs(context.Background(), itemID)
	if err != nil {
		return err
	}
	want := splitList(list)
	sort.Strings(got)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected functions [%s] for %s, got [%s]", strings.Join(want, ", "), itemID, strings.Join(got, ", "))
	}
	return nil
}

func (tc *triggerContext) everyEnqueuedJobShouldHaveADistinctID() error {
	jobs, err := helpers.DecodeJobs[queue.ExecutionJob](tc.backend, queue.Commands)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.ID == "" || seen[job.ID] {
			return fmt.Errorf("job id %q is empty or repeated", job.ID)
		}
		seen[job.ID] = true
	}
	return nil
}

func (tc *triggerContext) register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		tc.close()
		return ctx, nil
	})

	sc.Step(`^game server "([^"]*)" of domain "([^"]*)" with module "([^"]*)" installed$`, tc.gameServerOfDomainWithModuleInstalled)
	sc.Step(`^module "([^"]*)" has the commands:$`, tc.moduleHasTheCommands)
	sc.Step(`^command "([^"]*)" takes the arguments:$`, tc.commandTakesTheArguments)
	sc.Step(`^module "([^"]*)" has a cron job "([^"]*)" running "([^"]*)"$`, tc.moduleHasACronJobRunning)
	sc.Step(`^module "([^"]*)" has a "([^"]*)" hook "([^"]*)"$`, tc.moduleHasAHook)
	sc.Step(`^the functions "([^"]*)" exist$`, tc.theFunctionsExist)
	sc.Step(`^function "([^"]*)" is assigned to (command|cron job|hook) "([^"]*)"$`, tc.functionIsAssignedTo)
	sc.Step(`^function "([^"]*)" is assigned to a "([^"]*)" "([^"]*)"$`, tc.functionIsAssignedToAKind)
	sc.Step(`^function "([^"]*)" is unassigned from (command|cron job|hook) "([^"]*)"$`, tc.functionIsUnassignedFrom)
	sc.Step(`^function "([^"]*)" is deleted$`, tc.functionIsDeleted)
	sc.Step(`^game server "([^"]*)" uses the command prefix "([^"]*)"$`, tc.gameServerUsesTheCommandPrefix)

	sc.Step(`^player "([^"]*)" says "([^"]*)" on game server "([^"]*)"$`, tc.playerSaysOnGameServer)
	sc.Step(`^command "([^"]*)" fires on game server "([^"]*)"$`, tc.commandFiresOnGameServer)

	sc.Step(`^(\d+) command jobs should be enqueued$`, tc.commandJobsShouldBeEnqueued)
	sc.Step(`^the command job for "([^"]*)" should carry the arguments:$`, tc.theCommandJobForShouldCarryTheArguments)
	sc.Step(`^matching should fail with a validation error on "([^"]*)"$`, tc.matchingShouldFailWithAValidationErrorOn)
	sc.Step(`^the assignment should fail with a validation error$`, tc.theAssignmentShouldFailWithAValidationError)
	sc.Step(`^the functions related to "([^"]*)" should be "([^"]*)"$`, tc.theFunctionsRelatedToShouldBe)
	sc.Step(`^every enqueued job should have a distinct id$`, tc.everyEnqueuedJobShouldHaveADistinctID)
}

// InitializeCommandMatchingScenario registers chat command matching steps
func InitializeCommandMatchingScenario(sc *godog.ScenarioContext) {
	(&triggerContext{}).register(sc)
}

// InitializeTriggerResolutionScenario registers assignment and fan-out steps
func InitializeTriggerResolutionScenario(sc *godog.ScenarioContext) {
	(&triggerContext{}).register(sc)
}
