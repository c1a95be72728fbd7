package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rule violation
type FieldError struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Errors is the list of violations found in one value
type Errors []FieldError

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Messages returns the human-readable form of each violation
func (es Errors) Messages() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.String()
	}
	return out
}

// HasPath reports whether any violation concerns path
func (es Errors) HasPath(path string) bool {
	for _, e := range es {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Prefix returns a copy of es with prefix prepended to every path
func (es Errors) Prefix(prefix string) Errors {
	out := make(Errors, len(es))
	for i, e := range es {
		if e.Path == "" {
			e.Path = prefix
		} else if strings.HasPrefix(e.Path, "[") {
			e.Path = prefix + e.Path
		} else {
			e.Path = prefix + "." + e.Path
		}
		out[i] = e
	}
	return out
}

// decodeErrors converts a strict decoding failure of raw into target into
// field errors
func decodeErrors(err error, raw []byte, target reflect.Type) Errors {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &typeErr):
		return Errors{{
			Path:    typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}}
	case errors.As(err, &syntaxErr):
		return Errors{{
			Rule:    "json",
			Message: fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr),
		}}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		path := field
		var doc any
		if json.Unmarshal(raw, &doc) == nil {
			if p, ok := unknownFieldPath(doc, target, field, ""); ok {
				path = p
			}
		}
		return Errors{{
			Path:    path,
			Rule:    "unknown",
			Message: "unknown field",
		}}
	default:
		return Errors{{Rule: "json", Message: err.Error()}}
	}
}

// unknownFieldPath walks doc alongside t and returns the JSON path of the
// first key named field that t does not declare. Keys are visited in sorted
// order so the result is stable.
func unknownFieldPath(doc any, t reflect.Type, field, prefix string) (string, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch v := doc.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			path := joinPath(prefix, k)
			var next reflect.Type
			switch t.Kind() {
			case reflect.Struct:
				f, ok := jsonField(t, k)
				if !ok {
					if k == field {
						return path, true
					}
					continue
				}
				next = f.Type
			case reflect.Map:
				next = t.Elem()
			default:
				continue
			}
			if p, ok := unknownFieldPath(v[k], next, field, path); ok {
				return p, true
			}
		}
	case []any:
		if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
			return "", false
		}
		for i, elem := range v {
			if p, ok := unknownFieldPath(elem, t.Elem(), field, prefix+"["+strconv.Itoa(i)+"]"); ok {
				return p, true
			}
		}
	}
	return "", false
}

// jsonField finds the struct field encoding/json would decode key into.
// Embedded structs are not used by the data model and are not followed.
func jsonField(t reflect.Type, key string) (reflect.StructField, bool) {
	var fold reflect.StructField
	folded := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if name == key {
			return f, true
		}
		if !folded && strings.EqualFold(name, key) {
			fold, folded = f, true
		}
	}
	return fold, folded
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func ruleErrors(err error) Errors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{{Rule: "invalid", Message: err.Error()}}
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Path:    fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: ruleMessage(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	unit := ""
	switch fe.Kind().String() {
	case "string":
		unit = " characters"
	case "slice", "array", "map":
		unit = " items"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "goalstatus":
		return fmt.Sprintf("must be a goal status, got %q", fmt.Sprint(fe.Value()))
	case "isodate":
		return fmt.Sprintf("must be an ISO-8601 date, got %q", fmt.Sprint(fe.Value()))
	case "clocktime":
		return fmt.Sprintf("must be a time of day (HH:MM), got %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
