package notification

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"concretesync/internal/broadcast"
)

const EventWeatherAdvisory = "advisory:weather"

var ErrEmptyAdvisory = errors.New("advisory needs a condition and a message")

// WeatherAdvisory is published once and dispatched by every instance under the same id.
type WeatherAdvisory struct {
	ID        uuid.UUID `json:"id"`
	Site      string    `json:"site,omitempty"`
	Condition string    `json:"condition"`
	Message   string    `json:"message"`
}

// PublishWeatherAdvisory assigns an id when missing and broadcasts the advisory.
// The local instance receives it through its own listener.
func PublishWeatherAdvisory(ctx context.Context, bus *broadcast.Bus, adv WeatherAdvisory) (WeatherAdvisory, error) {
	if adv.Condition == "" || adv.Message == "" {
		return WeatherAdvisory{}, ErrEmptyAdvisory
	}
	if adv.ID == uuid.Nil {
		adv.ID = uuid.New()
	}
	bus.Broadcast(ctx, EventWeatherAdvisory, adv)
	return adv, nil
}

// ListenAdvisories dispatches weather advisories from any instance. Returns the unsubscribe func.
func (d *Dispatcher) ListenAdvisories(bus *broadcast.Bus) func() {
	return bus.Subscribe(EventWeatherAdvisory, func(ctx context.Context, payload json.RawMessage) {
		var adv WeatherAdvisory
		if err := json.Unmarshal(payload, &adv); err != nil {
			d.logger.Warn("Ignoring malformed weather advisory", zap.Error(err))
			return
		}
		d.NotifyWeatherAlert(ctx, WeatherAlert{
			RecordID:  adv.ID,
			Site:      adv.Site,
			Condition: adv.Condition,
			Message:   adv.Message,
		})
	})
}
