package notification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"concretesync/internal/model"
)

var ErrInvalidTimeOfDay = errors.New("invalid time of day, want HH:MM")

// TimeOfDay is minutes since midnight.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay(h*60 + m), nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// InWindow 判断 now 是否落在 [start, end)；start > end 时窗口跨越午夜，start == end 为空窗口
func InWindow(now, start, end TimeOfDay) bool {
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// InQuietHours evaluates the window against t as seen in t's location.
// Unparseable bounds never suppress.
func InQuietHours(qh model.QuietHours, t time.Time) bool {
	if !qh.Enabled {
		return false
	}
	start, err := ParseTimeOfDay(qh.Start)
	if err != nil {
		return false
	}
	end, err := ParseTimeOfDay(qh.End)
	if err != nil {
		return false
	}
	return InWindow(TimeOfDayOf(t), start, end)
}

// ValidateConfig checks the quiet-hours bounds.
func ValidateConfig(cfg model.NotificationConfig) error {
	if _, err := ParseTimeOfDay(cfg.QuietHours.Start); err != nil {
		return fmt.Errorf("quiet_hours.start: %w", err)
	}
	if _, err := ParseTimeOfDay(cfg.QuietHours.End); err != nil {
		return fmt.Errorf("quiet_hours.end: %w", err)
	}
	return nil
}
