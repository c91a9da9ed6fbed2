// internal/game/rules.go
package game

import "fmt"

// Settings defines the per-room game parameters. The host can change them
// while the room sits in the lobby; they are locked once drawing starts.
type Settings struct {
	Segments      int  `json:"segments"`      // number of picture slices, one per drawing round
	Width         int  `json:"width"`         // full canvas width in px
	Height        int  `json:"height"`        // full canvas height in px
	Guidelines    bool `json:"guidelines"`    // show the overlap hint strip between segments
	TimerDuration int  `json:"timerDuration"` // seconds per segment; 0 disables the timer
}

// DefaultSettings returns the settings applied when a room is created
// without an explicit settings object.
func DefaultSettings() Settings {
	return Settings{
		Segments:      3,
		Width:         600,
		Height:        900,
		Guidelines:    true,
		TimerDuration: 30,
	}
}

// Update merges a partial settings object into the receiver. Fields that
// are absent or nil keep their old values. Returns an error on a type
// mismatch or an out-of-range value, leaving the receiver unchanged in
// that case is the caller's job (callers update a copy first).
func (s *Settings) Update(partial map[string]interface{}) error {
	assignBool := func(field *bool, key string) error {
		if val, exists := partial[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal int) error {
		if val, exists := partial[key]; exists && val != nil {
			// JSON numbers decode as float64; accept int for direct callers.
			switch n := val.(type) {
			case float64:
				*field = int(n)
			case int:
				*field = n
			default:
				return fmt.Errorf("invalid type for %s", key)
			}
			if *field < minVal {
				return fmt.Errorf("%s must be at least %d", key, minVal)
			}
		}
		return nil
	}

	if err := assignInt(&s.Segments, "segments", 1); err != nil {
		return err
	}
	if err := assignInt(&s.Width, "width", 1); err != nil {
		return err
	}
	if err := assignInt(&s.Height, "height", 1); err != nil {
		return err
	}
	if err := assignBool(&s.Guidelines, "guidelines"); err != nil {
		return err
	}
	if err := assignInt(&s.TimerDuration, "timerDuration", 0); err != nil {
		return err
	}
	return nil
}

// ParseSettings applies a partial settings map over current and returns
// the result, validating types and ranges.
func ParseSettings(partial map[string]interface{}, current Settings) (Settings, error) {
	settings := current
	err := settings.Update(partial)
	return settings, err
}
