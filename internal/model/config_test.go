package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationConfig_Normalize(t *testing.T) {
	cfg := NotificationConfig{
		Enabled:    true,
		Categories: map[Category]bool{CategoryOrderUpdate: false, "bogus": true},
	}.Normalize()

	assert.Len(t, cfg.Categories, len(Categories))
	assert.False(t, cfg.Categories[CategoryOrderUpdate])
	assert.True(t, cfg.Categories[CategoryUrgentDelivery])
	assert.NotContains(t, cfg.Categories, Category("bogus"))
	assert.Equal(t, "22:00", cfg.QuietHours.Start)
	assert.Equal(t, "07:00", cfg.QuietHours.End)
}

func TestNotificationConfig_CloneIsIndependent(t *testing.T) {
	orig := DefaultNotificationConfig()
	cp := orig.Clone()
	cp.Categories[CategorySystem] = false

	assert.True(t, orig.Categories[CategorySystem])
}

func TestNotificationConfig_CategoryEnabled(t *testing.T) {
	cfg := NotificationConfig{Categories: map[Category]bool{CategoryWeatherAlert: false}}
	assert.False(t, cfg.CategoryEnabled(CategoryWeatherAlert))
	assert.True(t, cfg.CategoryEnabled(CategorySystem))
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryUrgentDelivery.Valid())
	assert.False(t, Category("marketing").Valid())
}
