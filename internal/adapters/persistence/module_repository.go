package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

type argumentRecord struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Position     int     `json:"position"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	HelpText     string  `json:"helpText,omitempty"`
}

// GormModuleRepository implements module.Repository using GORM
type GormModuleRepository struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormModuleRepository creates a new GORM module repository
func NewGormModuleRepository(db *gorm.DB, clock shared.Clock) *GormModuleRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormModuleRepository{db: db, clock: clock}
}

// Save upserts a module and replaces its triggers with m's.
// Triggers missing from m are deleted along with their assignments.
func (r *GormModuleRepository) Save(ctx context.Context, m *module.Module) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.clock.Now()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := &ModuleModel{
			ID:           m.ID,
			Name:         m.Name,
			Description:  m.Description,
			ConfigSchema: string(m.ConfigSchema),
			CreatedAt:    m.CreatedAt,
		}
		if err := tx.Save(model).Error; err != nil {
			return fmt.Errorf("failed to save module: %w", err)
		}

		commandIDs := make([]string, 0, len(m.Commands))
		for _, c := range m.Commands {
			cm, err := commandToModel(m.ID, c)
			if err != nil {
				return err
			}
			if err := tx.Save(cm).Error; err != nil {
				return fmt.Errorf("failed to save command %s: %w", c.Trigger, err)
			}
			commandIDs = append(commandIDs, c.ID)
		}
		if err := deleteMissing(tx, &CommandModel{}, m.ID, commandIDs); err != nil {
			return err
		}

		hookIDs := make([]string, 0, len(m.Hooks))
		for _, h := range m.Hooks {
			hm := &HookModel{ID: h.ID, ModuleID: m.ID, Name: h.Name, EventType: string(h.EventType), Regex: h.Regex}
			if err := tx.Save(hm).Error; err != nil {
				return fmt.Errorf("failed to save hook %s: %w", h.Name, err)
			}
			hookIDs = append(hookIDs, h.ID)
		}
		if err := deleteMissing(tx, &HookModel{}, m.ID, hookIDs); err != nil {
			return err
		}

		cronIDs := make([]string, 0, len(m.CronJobs))
		for _, cj := range m.CronJobs {
			cm := &CronJobModel{ID: cj.ID, ModuleID: m.ID, Name: cj.Name, TemporalValue: cj.TemporalValue}
			if err := tx.Save(cm).Error; err != nil {
				return fmt.Errorf("failed to save cron job %s: %w", cj.Name, err)
			}
			cronIDs = append(cronIDs, cj.ID)
		}
		return deleteMissing(tx, &CronJobModel{}, m.ID, cronIDs)
	})
}

// deleteMissing removes a module's triggers not in keep. Assignments are
// deleted explicitly so the cascade does not depend on driver FK support.
func deleteMissing(tx *gorm.DB, model interface{}, moduleID string, keep []string) error {
	q := tx.Model(model).Where("module_id = ?", moduleID)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	var stale []string
	if err := q.Pluck("id", &stale).Error; err != nil {
		return fmt.Errorf("failed to find stale triggers: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := tx.Where("command_id IN ? OR cron_job_id IN ? OR hook_id IN ?", stale, stale, stale).
		Delete(&FunctionAssignmentModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete stale assignments: %w", err)
	}
	if err := tx.Where("id IN ?", stale).Delete(model).Error; err != nil {
		return fmt.Errorf("failed to delete stale triggers: %w", err)
	}
	return nil
}

// FindByID loads a module with all of its triggers
func (r *GormModuleRepository) FindByID(ctx context.Context, id string) (*module.Module, error) {
	db := r.db.WithContext(ctx)

	var model ModuleModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("module", id)
		}
		return nil, fmt.Errorf("failed to find module: %w", err)
	}

	m := &module.Module{
		ID:           model.ID,
		Name:         model.Name,
		Description:  model.Description,
		ConfigSchema: json.RawMessage(model.ConfigSchema),
		CreatedAt:    model.CreatedAt,
	}

	var commands []CommandModel
	if err := db.Where("module_id = ?", id).Order("trigger_word").Find(&commands).Error; err != nil {
		return nil, fmt.Errorf("failed to load commands: %w", err)
	}
	for i := range commands {
		c, err := modelToCommand(&commands[i])
		if err != nil {
			return nil, err
		}
		m.Commands = append(m.Commands, c)
	}

	var hooks []HookModel
	if err := db.Where("module_id = ?", id).Order("name").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to load hooks: %w", err)
	}
	for i := range hooks {
		m.Hooks = append(m.Hooks, modelToHook(&hooks[i]))
	}

	var crons []CronJobModel
	if err := db.Where("module_id = ?", id).Order("name").Find(&crons).Error; err != nil {
		return nil, fmt.Errorf("failed to load cron jobs: %w", err)
	}
	for i := range crons {
		m.CronJobs = append(m.CronJobs, modelToCronJob(&crons[i]))
	}

	return m, nil
}

// Install creates or replaces the installation of a module on a server
func (r *GormModuleRepository) Install(ctx context.Context, inst *module.Installation) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = r.clock.Now()
	}
	model := &ModuleInstallationModel{
		ID:           inst.ID,
		ModuleID:     inst.ModuleID,
		GameServerID: inst.GameServerID,
		DomainID:     inst.DomainID,
		UserConfig:   string(inst.UserConfig),
		CreatedAt:    inst.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to install module: %w", err)
	}
	return nil
}

// Uninstall removes a module from a server
func (r *GormModuleRepository) Uninstall(ctx context.Context, gameServerID, moduleID string) error {
	result := r.db.WithContext(ctx).
		Where("gameserver_id = ? AND module_id = ?", gameServerID, moduleID).
		Delete(&ModuleInstallationModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to uninstall module: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("installation", gameServerID+"/"+moduleID)
	}
	return nil
}

// FindCommandsByTrigger returns enabled matching commands of installed modules
func (r *GormModuleRepository) FindCommandsByTrigger(ctx context.Context, gameServerID, trigger string) ([]module.InstalledCommand, error) {
	installs, moduleIDs, err := r.installationsFor(ctx, gameServerID)
	if err != nil || len(moduleIDs) == 0 {
		return nil, err
	}

	var models []CommandModel
	err = r.db.WithContext(ctx).
		Where("module_id IN ? AND enabled = ? AND LOWER(trigger_word) = ?", moduleIDs, true, strings.ToLower(trigger)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find commands: %w", err)
	}

	result := make([]module.InstalledCommand, 0, len(models))
	for i := range models {
		c, err := modelToCommand(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, module.InstalledCommand{Command: c, Installation: installs[c.ModuleID]})
	}
	return result, nil
}

// FindHooksByEventType returns hooks of installed modules for eventType
func (r *GormModuleRepository) FindHooksByEventType(ctx context.Context, gameServerID string, eventType gameserver.EventType) ([]module.InstalledHook, error) {
	installs, moduleIDs, err := r.installationsFor(ctx, gameServerID)
	if err != nil || len(moduleIDs) == 0 {
		return nil, err
	}

	var models []HookModel
	err = r.db.WithContext(ctx).
		Where("module_id IN ? AND event_type = ?", moduleIDs, string(eventType)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find hooks: %w", err)
	}

	result := make([]module.InstalledHook, 0, len(models))
	for i := range models {
		h := modelToHook(&models[i])
		result = append(result, module.InstalledHook{Hook: h, Installation: installs[h.ModuleID]})
	}
	return result, nil
}

// ListInstalledCronJobs pairs every cron job with every installation of its module
func (r *GormModuleRepository) ListInstalledCronJobs(ctx context.Context) ([]module.InstalledCronJob, error) {
	var installs []ModuleInstallationModel
	if err := r.db.WithContext(ctx).Order("id").Find(&installs).Error; err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	if len(installs) == 0 {
		return nil, nil
	}

	byModule := make(map[string][]*module.Installation)
	moduleIDs := make([]string, 0, len(installs))
	for i := range installs {
		inst := modelToInstallation(&installs[i])
		if _, seen := byModule[inst.ModuleID]; !seen {
			moduleIDs = append(moduleIDs, inst.ModuleID)
		}
		byModule[inst.ModuleID] = append(byModule[inst.ModuleID], inst)
	}

	var crons []CronJobModel
	if err := r.db.WithContext(ctx).Where("module_id IN ?", moduleIDs).Order("id").Find(&crons).Error; err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}

	var result []module.InstalledCronJob
	for i := range crons {
		cj := modelToCronJob(&crons[i])
		for _, inst := range byModule[cj.ModuleID] {
			result = append(result, module.InstalledCronJob{CronJob: cj, Installation: inst})
		}
	}
	return result, nil
}

func (r *GormModuleRepository) installationsFor(ctx context.Context, gameServerID string) (map[string]*module.Installation, []string, error) {
	var models []ModuleInstallationModel
	if err := r.db.WithContext(ctx).Where("gameserver_id = ?", gameServerID).Find(&models).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list installations: %w", err)
	}

	byModule := make(map[string]*module.Installation, len(models))
	ids := make([]string, 0, len(models))
	for i := range models {
		inst := modelToInstallation(&models[i])
		byModule[inst.ModuleID] = inst
		ids = append(ids, inst.ModuleID)
	}
	return byModule, ids, nil
}

func commandToModel(moduleID string, c *module.Command) (*CommandModel, error) {
	records := make([]argumentRecord, 0, len(c.Arguments))
	for _, a := range c.Arguments {
		records = append(records, argumentRecord{
			Name:         a.Name,
			Type:         string(a.Type),
			Position:     a.Position,
			DefaultValue: a.DefaultValue,
			HelpText:     a.HelpText,
		})
	}
	args, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	return &CommandModel{
		ID:          c.ID,
		ModuleID:    moduleID,
		Name:        c.Name,
		TriggerWord: c.Trigger,
		HelpText:    c.HelpText,
		Enabled:     c.Enabled,
		Arguments:   string(args),
	}, nil
}

func modelToCommand(model *CommandModel) (*module.Command, error) {
	var records []argumentRecord
	if model.Arguments != "" {
		if err := json.Unmarshal([]byte(model.Arguments), &records); err != nil {
			return nil, fmt.Errorf("invalid arguments for command %s: %w", model.ID, err)
		}
	}
	args := make([]module.Argument, 0, len(records))
	for _, rec := range records {
		args = append(args, module.Argument{
			Name:         rec.Name,
			Type:         module.ArgumentType(rec.Type),
			Position:     rec.Position,
			DefaultValue: rec.DefaultValue,
			HelpText:     rec.HelpText,
		})
	}
	return &module.Command{
		ID:        model.ID,
		ModuleID:  model.ModuleID,
		Name:      model.Name,
		Trigger:   model.TriggerWord,
		HelpText:  model.HelpText,
		Enabled:   model.Enabled,
		Arguments: args,
	}, nil
}

func modelToHook(model *HookModel) *module.Hook {
	return &module.Hook{
		ID:        model.ID,
		ModuleID:  model.ModuleID,
		Name:      model.Name,
		EventType: gameserver.EventType(model.EventType),
		Regex:     model.Regex,
	}
}

func modelToCronJob(model *CronJobModel) *module.CronJob {
	return &module.CronJob{
		ID:            model.ID,
		ModuleID:      model.ModuleID,
		Name:          model.Name,
		TemporalValue: model.TemporalValue,
	}
}

func modelToInstallation(model *ModuleInstallationModel) *module.Installation {
	return &module.Installation{
		ID:           model.ID,
		ModuleID:     model.ModuleID,
		GameServerID: model.GameServerID,
		DomainID:     model.DomainID,
		UserConfig:   json.RawMessage(model.UserConfig),
		CreatedAt:    model.CreatedAt,
	}
}
