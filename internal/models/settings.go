package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SessionSettings is the typed form of the session settings blob. Unrecognized
// keys survive a round trip through Extra so older clients can keep sending
// fields the server does not interpret yet.
type SessionSettings struct {
	DefaultTimerDuration int `json:"default_timer_duration,omitempty"`

	// Stored and echoed for clients; the server does not gate rotation
	// creation on it.
	AllowMultipleRotations bool `json:"allow_multiple_rotations,omitempty"`

	MaxParticipants int `json:"max_participants,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var sessionSettingsKeys = []string{
	"default_timer_duration",
	"allow_multiple_rotations",
	"max_participants",
}

func (s SessionSettings) MarshalJSON() ([]byte, error) {
	type plain SessionSettings
	return marshalWithExtra(plain(s), s.Extra)
}

func (s *SessionSettings) UnmarshalJSON(data []byte) error {
	type plain SessionSettings
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SessionSettings(p)
	extra, err := extraKeys(data, sessionSettingsKeys)
	if err != nil {
		return err
	}
	s.Extra = extra
	return nil
}

func (s SessionSettings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SessionSettings) Scan(value any) error {
	return scanJSON(value, s)
}

// RotationSettings is the typed form of a rotation's custom settings.
type RotationSettings struct {
	SoundAlerts  bool `json:"sound_alerts,omitempty"`
	AlertSeconds int  `json:"alert_seconds,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var rotationSettingsKeys = []string{
	"sound_alerts",
	"alert_seconds",
}

func (s RotationSettings) MarshalJSON() ([]byte, error) {
	type plain RotationSettings
	return marshalWithExtra(plain(s), s.Extra)
}

func (s *RotationSettings) UnmarshalJSON(data []byte) error {
	type plain RotationSettings
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = RotationSettings(p)
	extra, err := extraKeys(data, rotationSettingsKeys)
	if err != nil {
		return err
	}
	s.Extra = extra
	return nil
}

func (s RotationSettings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *RotationSettings) Scan(value any) error {
	return scanJSON(value, s)
}

// UserIDList is an ordered sequence of user ids stored as a JSON array.
type UserIDList []uint

func (l UserIDList) Value() (driver.Value, error) {
	if l == nil {
		l = UserIDList{}
	}
	b, err := json.Marshal([]uint(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *UserIDList) Scan(value any) error {
	return scanJSON(value, (*[]uint)(l))
}

// marshalWithExtra serializes the known fields, then folds the escape-hatch
// map back in without letting it shadow a recognized key.
func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func extraKeys(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func scanJSON(value any, dest any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}
