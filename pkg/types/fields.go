package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DecodeFunc decodes one JSON value into v
type DecodeFunc func(raw []byte, v any) error

type field struct {
	decode func(raw []byte, dec DecodeFunc, d *AppData) error
	copy   func(dst, src *AppData)
}

func fieldOf[T any](ptr func(*AppData) *T) field {
	return field{
		decode: func(raw []byte, dec DecodeFunc, d *AppData) error {
			var v T
			if err := dec(raw, &v); err != nil {
				return err
			}
			*ptr(d) = v
			return nil
		},
		copy: func(dst, src *AppData) {
			*ptr(dst) = *ptr(src)
		},
	}
}

// fields maps each top-level JSON key of AppData to its accessor
var fields = map[string]field{
	"goals":             fieldOf(func(d *AppData) *[]Goal { return &d.Goals }),
	"events":            fieldOf(func(d *AppData) *[]CalendarEvent { return &d.Events }),
	"streak":            fieldOf(func(d *AppData) **Streak { return &d.Streak }),
	"achievements":      fieldOf(func(d *AppData) *[]string { return &d.Achievements }),
	"weeklyReviews":     fieldOf(func(d *AppData) *[]WeeklyReview { return &d.WeeklyReviews }),
	"brainDump":         fieldOf(func(d *AppData) *[]BrainDumpEntry { return &d.BrainDump }),
	"bodyDoubleHistory": fieldOf(func(d *AppData) *[]BodyDoubleSession { return &d.BodyDoubleHistory }),
	"preferences":       fieldOf(func(d *AppData) **Preferences { return &d.Preferences }),
	"analytics":         fieldOf(func(d *AppData) **Analytics { return &d.Analytics }),
	"createdAt":         fieldOf(func(d *AppData) *string { return &d.CreatedAt }),
	"version":           fieldOf(func(d *AppData) *int { return &d.Version }),
}

// FieldNames returns the top-level JSON keys of AppData in sorted order
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeFields decodes each top-level field of a JSON object on its own, so
// one malformed field does not lose the others. The returned map holds the
// error of every field that failed to decode and of every unknown key. An
// error is returned only when raw is not a JSON object.
func DecodeFields(raw []byte, dec DecodeFunc) (*AppData, map[string]error, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, nil, fmt.Errorf("not a JSON object: null")
	}

	data := &AppData{}
	errs := make(map[string]error)
	for key, value := range obj {
		f, ok := fields[key]
		if !ok {
			errs[key] = fmt.Errorf("unknown field")
			continue
		}
		if err := f.decode(value, dec, data); err != nil {
			errs[key] = err
		}
	}
	return data, errs, nil
}

// CopyField copies the top-level field name from src to dst. It reports
// false for unknown names.
func CopyField(name string, dst, src *AppData) bool {
	f, ok := fields[name]
	if !ok {
		return false
	}
	f.copy(dst, src)
	return true
}

// UnmarshalLenient decodes a stored snapshot, dropping fields that do not
// decode instead of failing. The dropped field names are returned sorted.
func UnmarshalLenient(raw []byte) (*AppData, []string, error) {
	data, errs, err := DecodeFields(raw, json.Unmarshal)
	if err != nil {
		return nil, nil, err
	}

	var dropped []string
	for name := range errs {
		if _, known := fields[name]; known {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)
	return data, dropped, nil
}
