package mq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

var (
	ErrMissingTable     = errors.New("change event: missing table")
	ErrUnknownEventType = errors.New("change event: unknown event_type")
)

// Row 变更前/后的行数据，数字以 json.Number 保存
type Row map[string]any

// String returns the column as a string; numbers are rendered in their JSON form.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the column as an integer when it holds a number or numeric string.
func (r Row) Int(col string) (int64, bool) {
	switch v := r[col].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// ChangeEvent 变更流事件，routing key: feed.<table>.<event_type 小写>
type ChangeEvent struct {
	Table           string    `json:"table"`
	EventType       EventType `json:"event_type"`
	Before          Row       `json:"before"`
	After           Row       `json:"after"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
	EventID         string    `json:"event_id,omitempty"`
}

// Record returns the row the event is about: after for INSERT/UPDATE, before for DELETE.
func (e ChangeEvent) Record() Row {
	if e.EventType == EventDelete || e.After == nil {
		return e.Before
	}
	return e.After
}

func (e ChangeEvent) RoutingKey() string {
	return FeedRoutingKey(e.Table, e.EventType)
}

func (e ChangeEvent) Validate() error {
	if e.Table == "" {
		return ErrMissingTable
	}
	switch e.EventType {
	case EventInsert, EventUpdate, EventDelete:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
}

// DecodeChangeEvent parses and validates a feed payload.
func DecodeChangeEvent(raw []byte) (ChangeEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var e ChangeEvent
	if err := dec.Decode(&e); err != nil {
		return ChangeEvent{}, fmt.Errorf("change event: %w", err)
	}
	e.Table = strings.TrimSpace(e.Table)
	e.EventType = EventType(strings.ToUpper(string(e.EventType)))
	if err := e.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return e, nil
}

// FeedRoutingKey builds feed.<table>.<event_type>; an empty event type yields the table wildcard.
func FeedRoutingKey(table string, eventType EventType) string {
	if eventType == "" {
		return "feed." + table + ".*"
	}
	return "feed." + table + "." + strings.ToLower(string(eventType))
}
