package service

import (
	"context"
	"testing"

	"vendaschat/internal/buttontree"
	"vendaschat/internal/model"
	"vendaschat/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBotConfigService(store *memStore) (*BotConfigService, *mockEventBus) {
	bus := &mockEventBus{}
	return NewBotConfigService(store, schema.NewCompilerWithCache(16), bus), bus
}

func TestBotConfigPut(t *testing.T) {
	store := newMemStore(testConfig())
	svc, bus := newBotConfigService(store)
	ctx := context.Background()

	cfg := testConfig()
	cfg.BotName = "Ana"
	cfg.WelcomeMessage = "Bem-vindo!"
	require.NoError(t, svc.Put(ctx, cfg))

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.BotName)
	assert.Equal(t, "Bem-vindo!", got.WelcomeMessage)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "bot_config.updated", bus.events[0]["type"])
}

func TestBotConfigPutRejectsBadMode(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)

	cfg := testConfig()
	cfg.Mode = "voice"
	err := svc.Put(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBotConfigPutRejectsInvalidTree(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)
	ctx := context.Background()

	// Duplicate id across branches
	cfg := testConfig()
	cfg.RootButtons = append(cfg.RootButtons, model.ButtonNode{
		ID: "a", Label: "Dup", ResponseText: "dup",
	})
	err := svc.Put(ctx, cfg)
	assert.ErrorIs(t, err, ErrValidation)

	// Missing response text
	cfg = testConfig()
	cfg.RootButtons[0].ResponseText = ""
	err = svc.Put(ctx, cfg)
	assert.ErrorIs(t, err, ErrValidation)

	// Rejected writes leave the stored config untouched
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Escolha um plano:", got.RootButtons[0].ResponseText)
}

func TestBotConfigPutAllowsEmptyTree(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)

	cfg := testConfig()
	cfg.RootButtons = nil
	assert.NoError(t, svc.Put(context.Background(), cfg))
}

func TestBotConfigAddButton(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)
	ctx := context.Background()

	cfg, err := svc.AddButton(ctx, "b", model.ButtonNode{
		ID: "b1", Label: "WhatsApp", ResponseText: "Chame no WhatsApp.",
	})
	require.NoError(t, err)

	added, ok := buttontree.Find(cfg.RootButtons, "b1")
	require.True(t, ok)
	assert.Equal(t, "WhatsApp", added.Label)

	// Unknown parent
	_, err = svc.AddButton(ctx, "nope", model.ButtonNode{
		ID: "x", Label: "X", ResponseText: "x",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate id is rejected before anything is stored
	_, err = svc.AddButton(ctx, "", model.ButtonNode{
		ID: "a", Label: "Dup", ResponseText: "dup",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBotConfigPatchButton(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)
	ctx := context.Background()

	label := "Planos e preços"
	cfg, err := svc.PatchButton(ctx, "a", buttontree.Patch{Label: &label})
	require.NoError(t, err)

	patched, ok := buttontree.Find(cfg.RootButtons, "a")
	require.True(t, ok)
	assert.Equal(t, "Planos e preços", patched.Label)
	// Untouched fields survive the patch
	assert.Equal(t, "Escolha um plano:", patched.ResponseText)

	_, err = svc.PatchButton(ctx, "nope", buttontree.Patch{Label: &label})
	assert.ErrorIs(t, err, ErrNotFound)

	// Patching a field into an invalid value is rejected
	empty := ""
	_, err = svc.PatchButton(ctx, "a", buttontree.Patch{ResponseText: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBotConfigDeleteButton(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newBotConfigService(store)
	ctx := context.Background()

	cfg, err := svc.DeleteButton(ctx, "a")
	require.NoError(t, err)

	_, ok := buttontree.Find(cfg.RootButtons, "a")
	assert.False(t, ok)
	// Subtree goes with the node
	_, ok = buttontree.Find(cfg.RootButtons, "a1")
	assert.False(t, ok)

	_, err = svc.DeleteButton(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
