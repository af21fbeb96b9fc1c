package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"concretesync/internal/broadcast"
	"concretesync/internal/kv"
	"concretesync/internal/model"
)

const (
	DefaultConfigKey   = "notification_config"
	EventConfigUpdated = "notification_config:updated"
)

// ConfigStore holds the process-wide NotificationConfig, persisted in a KV slot.
type ConfigStore struct {
	kv     kv.Store
	key    string
	bus    *broadcast.Bus
	logger *zap.Logger

	mu  sync.RWMutex
	cfg model.NotificationConfig
}

func NewConfigStore(store kv.Store, key string, bus *broadcast.Bus, logger *zap.Logger) *ConfigStore {
	if key == "" {
		key = DefaultConfigKey
	}
	return &ConfigStore{
		kv:     store,
		key:    key,
		bus:    bus,
		logger: logger,
		cfg:    model.DefaultNotificationConfig(),
	}
}

// Load 读取持久化配置；缺失、无法解析或不合法时回退到默认配置，从不失败
func (s *ConfigStore) Load(ctx context.Context) model.NotificationConfig {
	cfg := model.DefaultNotificationConfig()

	raw, ok, err := s.kv.Get(ctx, s.key)
	switch {
	case err != nil:
		s.logger.Warn("Failed to read notification config, using default", zap.Error(err))
	case !ok:
		s.logger.Info("No stored notification config, using default")
	default:
		if parsed, err := decodeConfig([]byte(raw)); err != nil {
			s.logger.Warn("Stored notification config is invalid, using default", zap.Error(err))
		} else {
			cfg = parsed
		}
	}

	s.set(cfg)
	return cfg.Clone()
}

// Get returns a copy of the current configuration.
func (s *ConfigStore) Get() model.NotificationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Save validates, normalizes and writes through. The in-memory value changes only on success.
func (s *ConfigStore) Save(ctx context.Context, cfg model.NotificationConfig) (model.NotificationConfig, error) {
	cfg = cfg.Normalize()
	if err := ValidateConfig(cfg); err != nil {
		return model.NotificationConfig{}, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return model.NotificationConfig{}, fmt.Errorf("encode notification config: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(raw)); err != nil {
		return model.NotificationConfig{}, err
	}

	s.set(cfg)
	s.logger.Info("Notification config saved",
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("quiet_hours", cfg.QuietHours.Enabled),
	)
	if s.bus != nil {
		s.bus.Broadcast(ctx, EventConfigUpdated, cfg)
	}
	return cfg.Clone(), nil
}

// Listen applies configurations saved by sibling instances. Returns the unsubscribe func.
func (s *ConfigStore) Listen() func() {
	return s.bus.Subscribe(EventConfigUpdated, func(ctx context.Context, payload json.RawMessage) {
		cfg, err := decodeConfig(payload)
		if err != nil {
			s.logger.Warn("Ignoring invalid config broadcast", zap.Error(err))
			return
		}
		s.set(cfg)
	})
}

func (s *ConfigStore) set(cfg model.NotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}

func decodeConfig(raw []byte) (model.NotificationConfig, error) {
	// 缺省字段保持默认值
	cfg := model.DefaultNotificationConfig()
	cfg.Categories = nil
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return model.NotificationConfig{}, fmt.Errorf("decode notification config: %w", err)
	}
	cfg = cfg.Normalize()
	if err := ValidateConfig(cfg); err != nil {
		return model.NotificationConfig{}, err
	}
	return cfg, nil
}
