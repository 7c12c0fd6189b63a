package service

import (
	"context"
	"errors"
	"fmt"

	"vendaschat/internal/buttontree"
	"vendaschat/internal/model"
	"vendaschat/internal/schema"
)

// BotConfigService owns the admin side of the button tree. Every write
// validates twice: the JSON Schema catches shape problems (unknown fields,
// bad enums), the tree check catches structural ones (duplicate ids, cycles).
// Running sessions keep their current snapshot; new sessions and resets pick
// up the stored tree.
type BotConfigService struct {
	configs  ConfigStore
	compiler *schema.Compiler
	bus      EventBus
}

func NewBotConfigService(configs ConfigStore, compiler *schema.Compiler, bus EventBus) *BotConfigService {
	return &BotConfigService{
		configs:  configs,
		compiler: compiler,
		bus:      bus,
	}
}

// Get returns the full admin view of the bot configuration
func (s *BotConfigService) Get(ctx context.Context) (model.BotConfig, error) {
	return s.configs.GetBotConfig(ctx)
}

// Put replaces the whole configuration
func (s *BotConfigService) Put(ctx context.Context, cfg model.BotConfig) error {
	if cfg.Mode != model.ModeIA && cfg.Mode != model.ModeButton {
		return fmt.Errorf("%w: mode must be %q or %q", ErrValidation, model.ModeIA, model.ModeButton)
	}
	if cfg.WelcomeMessage == "" {
		return fmt.Errorf("%w: welcome message is required", ErrValidation)
	}
	if err := s.validateTree(ctx, cfg.RootButtons); err != nil {
		return err
	}
	if err := s.configs.PutBotConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to store config: %w", err)
	}
	s.publishUpdated()
	return nil
}

// AddButton appends a button under parentID, or at the root when empty
func (s *BotConfigService) AddButton(ctx context.Context, parentID string, node model.ButtonNode) (model.BotConfig, error) {
	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return model.BotConfig{}, err
	}

	roots, err := buttontree.Insert(cfg.RootButtons, parentID, node)
	if err != nil {
		return model.BotConfig{}, translateTreeErr(err)
	}
	if err := s.validateTree(ctx, roots); err != nil {
		return model.BotConfig{}, err
	}

	cfg.RootButtons = roots
	if err := s.configs.PutBotConfig(ctx, cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("failed to store config: %w", err)
	}
	s.publishUpdated()
	return cfg, nil
}

// PatchButton merges field updates into the button matching id
func (s *BotConfigService) PatchButton(ctx context.Context, id string, patch buttontree.Patch) (model.BotConfig, error) {
	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return model.BotConfig{}, err
	}

	roots, err := buttontree.Update(cfg.RootButtons, id, patch)
	if err != nil {
		return model.BotConfig{}, translateTreeErr(err)
	}
	if err := s.validateTree(ctx, roots); err != nil {
		return model.BotConfig{}, err
	}

	cfg.RootButtons = roots
	if err := s.configs.PutBotConfig(ctx, cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("failed to store config: %w", err)
	}
	s.publishUpdated()
	return cfg, nil
}

// DeleteButton removes the button matching id together with its subtree
func (s *BotConfigService) DeleteButton(ctx context.Context, id string) (model.BotConfig, error) {
	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return model.BotConfig{}, err
	}

	roots, err := buttontree.Remove(cfg.RootButtons, id)
	if err != nil {
		return model.BotConfig{}, translateTreeErr(err)
	}

	cfg.RootButtons = roots
	if err := s.configs.PutBotConfig(ctx, cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("failed to store config: %w", err)
	}
	s.publishUpdated()
	return cfg, nil
}

func (s *BotConfigService) validateTree(ctx context.Context, roots []model.ButtonNode) error {
	if roots == nil {
		// nil marshals to JSON null, which is not an array
		roots = []model.ButtonNode{}
	}
	if s.compiler != nil {
		if err := s.compiler.ValidateButtonTree(ctx, roots); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if err := buttontree.Validate(roots); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *BotConfigService) publishUpdated() {
	_ = s.bus.PublishAgents(map[string]interface{}{
		"type": "bot_config.updated",
	})
}

func translateTreeErr(err error) error {
	switch {
	case errors.Is(err, buttontree.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, buttontree.ErrCycle):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
