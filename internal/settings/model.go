// Package settings holds the user-configurable timer behavior: a local
// preferences store backed by the flat KV, and the synced snapshot that
// crosses the cloud boundary.
package settings

// CustomPreset carries user-defined durations, in seconds, for the custom
// preset slot.
type CustomPreset struct {
	WorkDuration       int `json:"work_duration"`
	ShortBreakDuration int `json:"short_break_duration"`
	LongBreakDuration  int `json:"long_break_duration"`
}

// Synced is the flat snapshot of timer behavior that syncs to the cloud.
// Everything else in Local stays device-local.
type Synced struct {
	PresetID               string        `json:"preset_id"`
	WorkDuration           int           `json:"work_duration"`
	ShortBreakDuration     int           `json:"short_break_duration"`
	LongBreakDuration      int           `json:"long_break_duration"`
	SessionsUntilLongBreak int           `json:"sessions_until_long_break"`
	OverflowEnabled        bool          `json:"overflow_enabled"`
	DailyGoal              *int          `json:"daily_goal,omitempty"`
	AutoStartEnabled       bool          `json:"auto_start_enabled"`
	AutoStartDelay         int           `json:"auto_start_delay"`
	AutoStartMode          string        `json:"auto_start_mode"`
	CustomPreset           *CustomPreset `json:"custom_preset,omitempty"`
}

// Equal compares two snapshots field by field, following pointers.
func (s Synced) Equal(other Synced) bool {
	if s.PresetID != other.PresetID ||
		s.WorkDuration != other.WorkDuration ||
		s.ShortBreakDuration != other.ShortBreakDuration ||
		s.LongBreakDuration != other.LongBreakDuration ||
		s.SessionsUntilLongBreak != other.SessionsUntilLongBreak ||
		s.OverflowEnabled != other.OverflowEnabled ||
		s.AutoStartEnabled != other.AutoStartEnabled ||
		s.AutoStartDelay != other.AutoStartDelay ||
		s.AutoStartMode != other.AutoStartMode {
		return false
	}
	if !intPtrEqual(s.DailyGoal, other.DailyGoal) {
		return false
	}
	if (s.CustomPreset == nil) != (other.CustomPreset == nil) {
		return false
	}
	if s.CustomPreset != nil && *s.CustomPreset != *other.CustomPreset {
		return false
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// Local is the full device configuration: the synced snapshot plus
// device-local UI preferences that never cross the sync boundary.
type Local struct {
	Synced

	SoundPreset   string  `json:"sound_preset"`
	SoundVolume   float64 `json:"sound_volume"`
	SoundMuted    bool    `json:"sound_muted"`
	AmbientType   string  `json:"ambient_type"`
	AmbientVolume float64 `json:"ambient_volume"`
}

// Default returns the configuration used before the user changes anything.
func Default() Local {
	return Local{
		Synced: Synced{
			PresetID:               "classic",
			WorkDuration:           1500,
			ShortBreakDuration:     300,
			LongBreakDuration:      900,
			SessionsUntilLongBreak: 4,
			AutoStartDelay:         3,
			AutoStartMode:          "next",
		},
		SoundPreset:   "chime",
		SoundVolume:   0.8,
		AmbientVolume: 0.5,
	}
}
