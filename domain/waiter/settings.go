package waiter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Settings are the tunable timing and display parameters.
type Settings struct {
	WaiterDueMinutes        int    `json:"waiter_due_minutes" yaml:"waiter_due_minutes"`
	AcuteDueMinutes         int    `json:"acute_due_minutes" yaml:"acute_due_minutes"`
	UrgentDueMinutes        int    `json:"urgent_due_minutes" yaml:"urgent_due_minutes"`
	AutoClearMinutes        int    `json:"auto_clear_minutes" yaml:"auto_clear_minutes"`
	PharmacyName            string `json:"pharmacy_name" yaml:"pharmacy_name"`
	DisplayName             string `json:"display_name" yaml:"display_name"`
	WaiterColor             string `json:"waiter_color" yaml:"waiter_color"`
	AcuteColor              string `json:"acute_color" yaml:"acute_color"`
	UrgentColor             string `json:"urgent_color" yaml:"urgent_color"`
	PatientBoardMessage     string `json:"patient_board_message" yaml:"patient_board_message"`
	PatientBoardRefreshRate int    `json:"patient_board_refresh_rate" yaml:"patient_board_refresh_rate"`
	DisplayFontSize         string `json:"display_font_size" yaml:"display_font_size"`
	DarkMode                bool   `json:"dark_mode" yaml:"dark_mode"`
	SoundNotifications      bool   `json:"sound_notifications" yaml:"sound_notifications"`
}

func DefaultSettings() Settings {
	return Settings{
		WaiterDueMinutes:        30,
		AcuteDueMinutes:         60,
		UrgentDueMinutes:        60,
		AutoClearMinutes:        45,
		PharmacyName:            "Community Pharmacy",
		DisplayName:             "Pharmacy Waiter Board",
		WaiterColor:             "#22c55e",
		AcuteColor:              "#3b82f6",
		UrgentColor:             "#a855f7",
		PatientBoardMessage:     "Your order is ready - Please see the pharmacist",
		PatientBoardRefreshRate: 10,
		DisplayFontSize:         "large",
		DarkMode:                false,
		SoundNotifications:      false,
	}
}

// DueMinutes is the configured offset for t. Unknown types use the urgent value.
func (s Settings) DueMinutes(t OrderType) int {
	switch t {
	case TypeWaiter:
		return s.WaiterDueMinutes
	case TypeAcute:
		return s.AcuteDueMinutes
	default:
		return s.UrgentDueMinutes
	}
}

func (s Settings) AutoClear() time.Duration {
	return time.Duration(s.AutoClearMinutes) * time.Minute
}

func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.PatientBoardRefreshRate) * time.Second
}

// ---------------- Key/value encoding ----------------

type settingKind int

const (
	kindInt settingKind = iota
	kindString
	kindBool
)

type settingField struct {
	kind settingKind
	ints func(*Settings) *int
	strs func(*Settings) *string
	bits func(*Settings) *bool
}

func intField(f func(*Settings) *int) settingField       { return settingField{kind: kindInt, ints: f} }
func stringField(f func(*Settings) *string) settingField { return settingField{kind: kindString, strs: f} }
func boolField(f func(*Settings) *bool) settingField     { return settingField{kind: kindBool, bits: f} }

var settingFields = map[string]settingField{
	"waiter_due_minutes":         intField(func(s *Settings) *int { return &s.WaiterDueMinutes }),
	"acute_due_minutes":          intField(func(s *Settings) *int { return &s.AcuteDueMinutes }),
	"urgent_due_minutes":         intField(func(s *Settings) *int { return &s.UrgentDueMinutes }),
	"auto_clear_minutes":         intField(func(s *Settings) *int { return &s.AutoClearMinutes }),
	"patient_board_refresh_rate": intField(func(s *Settings) *int { return &s.PatientBoardRefreshRate }),
	"pharmacy_name":              stringField(func(s *Settings) *string { return &s.PharmacyName }),
	"display_name":               stringField(func(s *Settings) *string { return &s.DisplayName }),
	"waiter_color":               stringField(func(s *Settings) *string { return &s.WaiterColor }),
	"acute_color":                stringField(func(s *Settings) *string { return &s.AcuteColor }),
	"urgent_color":               stringField(func(s *Settings) *string { return &s.UrgentColor }),
	"patient_board_message":      stringField(func(s *Settings) *string { return &s.PatientBoardMessage }),
	"display_font_size":          stringField(func(s *Settings) *string { return &s.DisplayFontSize }),
	"dark_mode":                  boolField(func(s *Settings) *bool { return &s.DarkMode }),
	"sound_notifications":        boolField(func(s *Settings) *bool { return &s.SoundNotifications }),
}

// SettingKeys returns every recognised key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeSettings overlays stored key/value rows on the defaults. Unknown keys
// and values that no longer parse are skipped so a bad row never hides the
// rest of the configuration.
func DecodeSettings(kv map[string]string) Settings {
	s := DefaultSettings()
	for key, raw := range kv {
		f, ok := settingFields[key]
		if !ok {
			continue
		}
		switch f.kind {
		case kindInt:
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				*f.ints(&s) = n
			}
		case kindString:
			*f.strs(&s) = raw
		case kindBool:
			*f.bits(&s) = raw == "true"
		}
	}
	return s
}

// Encode flattens s into the string rows the settings table stores.
func (s Settings) Encode() map[string]string {
	out := make(map[string]string, len(settingFields))
	for key, f := range settingFields {
		switch f.kind {
		case kindInt:
			out[key] = strconv.Itoa(*f.ints(&s))
		case kindString:
			out[key] = *f.strs(&s)
		case kindBool:
			out[key] = strconv.FormatBool(*f.bits(&s))
		}
	}
	return out
}

// Merge returns s with the given partial update applied. Values may arrive
// from JSON (float64), YAML (int) or forms (string); each is coerced to the
// field's type. Unknown keys are rejected.
func (s Settings) Merge(update map[string]any) (Settings, error) {
	out := s
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f, ok := settingFields[key]
		if !ok {
			return s, errors.Wrapf(ErrInvalid, "unknown setting %q", key)
		}
		v := update[key]
		switch f.kind {
		case kindInt:
			n, err := toInt(v)
			if err != nil {
				return s, errors.Wrapf(ErrInvalid, "%s: %v", key, err)
			}
			*f.ints(&out) = n
		case kindString:
			str, ok := v.(string)
			if !ok {
				return s, errors.Wrapf(ErrInvalid, "%s: expected string, got %T", key, v)
			}
			*f.strs(&out) = str
		case kindBool:
			b, err := toBool(v)
			if err != nil {
				return s, errors.Wrapf(ErrInvalid, "%s: %v", key, err)
			}
			*f.bits(&out) = b
		}
	}
	return out, nil
}

var (
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	fontSizes    = map[string]bool{"small": true, "medium": true, "large": true, "extra-large": true}
)

// Validate checks the ranges the boards depend on.
func (s Settings) Validate() error {
	minutes := []struct {
		key   string
		value int
	}{
		{"waiter_due_minutes", s.WaiterDueMinutes},
		{"acute_due_minutes", s.AcuteDueMinutes},
		{"urgent_due_minutes", s.UrgentDueMinutes},
		{"auto_clear_minutes", s.AutoClearMinutes},
	}
	for _, m := range minutes {
		if m.value <= 0 {
			return errors.Wrapf(ErrInvalid, "%s must be positive, got %d", m.key, m.value)
		}
	}
	if s.PatientBoardRefreshRate < 5 || s.PatientBoardRefreshRate > 60 {
		return errors.Wrapf(ErrInvalid, "patient_board_refresh_rate must be between 5 and 60, got %d", s.PatientBoardRefreshRate)
	}
	if !fontSizes[s.DisplayFontSize] {
		return errors.Wrapf(ErrInvalid, "display_font_size %q is not one of small, medium, large, extra-large", s.DisplayFontSize)
	}
	colors := []struct{ key, value string }{
		{"waiter_color", s.WaiterColor},
		{"acute_color", s.AcuteColor},
		{"urgent_color", s.UrgentColor},
	}
	for _, c := range colors {
		if !colorPattern.MatchString(c.value) {
			return errors.Wrapf(ErrInvalid, "%s %q is not a #rrggbb color", c.key, c.value)
		}
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected whole number, got %v", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}
