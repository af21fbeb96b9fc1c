package model

// QuietHours 免打扰时段，Start/End 为 "HH:MM"，区间 [Start, End)，Start > End 时跨午夜
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// NotificationConfig 进程级通知配置
type NotificationConfig struct {
	Enabled    bool              `json:"enabled"`
	Categories map[Category]bool `json:"categories"`
	QuietHours QuietHours        `json:"quiet_hours"`
}

// DefaultNotificationConfig is used when nothing is stored or the stored value is unreadable.
func DefaultNotificationConfig() NotificationConfig {
	cats := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		cats[c] = true
	}
	return NotificationConfig{
		Enabled:    true,
		Categories: cats,
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "07:00",
		},
	}
}

// Normalize fills every missing category with true and drops unknown ones.
func (c NotificationConfig) Normalize() NotificationConfig {
	cats := make(map[Category]bool, len(Categories))
	for _, cat := range Categories {
		enabled, ok := c.Categories[cat]
		cats[cat] = !ok || enabled
	}
	c.Categories = cats

	def := DefaultNotificationConfig().QuietHours
	if c.QuietHours.Start == "" {
		c.QuietHours.Start = def.Start
	}
	if c.QuietHours.End == "" {
		c.QuietHours.End = def.End
	}
	return c
}

// Clone returns a deep copy.
func (c NotificationConfig) Clone() NotificationConfig {
	cats := make(map[Category]bool, len(c.Categories))
	for k, v := range c.Categories {
		cats[k] = v
	}
	c.Categories = cats
	return c
}

// CategoryEnabled 类别未出现在配置中视为启用
func (c NotificationConfig) CategoryEnabled(cat Category) bool {
	enabled, ok := c.Categories[cat]
	return !ok || enabled
}
