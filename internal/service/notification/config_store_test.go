package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"concretesync/internal/broadcast"
	"concretesync/internal/kv"
	"concretesync/internal/model"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("redis down")
}

func (failingKV) Set(context.Context, string, string) error { return errors.New("redis down") }

func newBus(origin string) *broadcast.Bus {
	return broadcast.NewBus(broadcast.NewMemorySlot(), origin, zap.NewNop())
}

func TestConfigStore_LoadFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	def := model.DefaultNotificationConfig()

	missing := NewConfigStore(kv.NewMemoryStore(), "", newBus("a"), zap.NewNop())
	assert.Equal(t, def, missing.Load(ctx))

	bad := kv.NewMemoryStore()
	require.NoError(t, bad.Set(ctx, DefaultConfigKey, "{broken"))
	assert.Equal(t, def, NewConfigStore(bad, "", newBus("a"), zap.NewNop()).Load(ctx))

	invalidTime := kv.NewMemoryStore()
	require.NoError(t, invalidTime.Set(ctx, DefaultConfigKey, `{"enabled":true,"quiet_hours":{"enabled":true,"start":"9pm","end":"07:00"}}`))
	assert.Equal(t, def, NewConfigStore(invalidTime, "", newBus("a"), zap.NewNop()).Load(ctx))

	assert.Equal(t, def, NewConfigStore(failingKV{}, "", newBus("a"), zap.NewNop()).Load(ctx))
}

func TestConfigStore_LoadNormalizesPartialConfig(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, DefaultConfigKey, `{"enabled":true,"categories":{"order_update":false}}`))

	cfg := NewConfigStore(store, "", newBus("a"), zap.NewNop()).Load(ctx)
	assert.False(t, cfg.Categories[model.CategoryOrderUpdate])
	assert.True(t, cfg.Categories[model.CategoryWeatherAlert])
	assert.Equal(t, "22:00", cfg.QuietHours.Start)
}

func TestConfigStore_SaveValidatesAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	cs := NewConfigStore(store, "", newBus("a"), zap.NewNop())
	cs.Load(ctx)

	cfg := model.DefaultNotificationConfig()
	cfg.QuietHours = model.QuietHours{Enabled: true, Start: "25:00", End: "07:00"}
	_, err := cs.Save(ctx, cfg)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
	assert.Equal(t, model.DefaultNotificationConfig(), cs.Get())

	cfg.QuietHours.Start = "21:30"
	saved, err := cs.Save(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "21:30", saved.QuietHours.Start)

	raw, ok, _ := store.Get(ctx, DefaultConfigKey)
	require.True(t, ok)
	var stored model.NotificationConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, saved, stored)
}

func TestConfigStore_SaveFailureKeepsPrevious(t *testing.T) {
	cs := NewConfigStore(failingKV{}, "", newBus("a"), zap.NewNop())
	cfg := model.DefaultNotificationConfig()
	cfg.Enabled = false

	_, err := cs.Save(context.Background(), cfg)
	assert.Error(t, err)
	assert.True(t, cs.Get().Enabled)
}

func TestConfigStore_GetReturnsCopy(t *testing.T) {
	cs := NewConfigStore(kv.NewMemoryStore(), "", newBus("a"), zap.NewNop())
	cfg := cs.Get()
	cfg.Categories[model.CategorySystem] = false
	assert.True(t, cs.Get().Categories[model.CategorySystem])
}

func TestConfigStore_ListenAppliesRemoteSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slot := broadcast.NewMemorySlot()
	busA := broadcast.NewBus(slot, "a", zap.NewNop())
	busB := broadcast.NewBus(slot, "b", zap.NewNop())
	go func() { _ = busB.Start(ctx) }()
	require.Eventually(t, func() bool { return slot.Watchers() == 1 }, time.Second, time.Millisecond)

	shared := kv.NewMemoryStore()
	a := NewConfigStore(shared, "", busA, zap.NewNop())
	b := NewConfigStore(shared, "", busB, zap.NewNop())
	defer b.Listen()()

	cfg := model.DefaultNotificationConfig()
	cfg.Categories[model.CategoryWeatherAlert] = false
	_, err := a.Save(ctx, cfg)
	require.NoError(t, err)

	assert.False(t, b.Get().Categories[model.CategoryWeatherAlert])
}
