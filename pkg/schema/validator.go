package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cuemby/verdant/pkg/types"
)

// Result is the outcome of validating untrusted input. Data is only
// meaningful when Success is true.
type Result[T any] struct {
	Success bool
	Data    T
	Errors  Errors
}

// Err returns the violations as an error, or nil on success
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return r.Errors
}

// Validator checks values against the struct rules declared in pkg/types
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with Verdant's custom rules registered
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil functions
	_ = v.RegisterValidation("isodate", validateISODate)
	_ = v.RegisterValidation("goalstatus", validateGoalStatus)
	_ = v.RegisterValidation("clocktime", validateClockTime)

	return &Validator{v: v}
}

// Default is the shared validator
var Default = New()

var isoLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// IsISODate reports whether s is an ISO-8601 date or date-time
func IsISODate(s string) bool {
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func validateISODate(fl validator.FieldLevel) bool {
	return IsISODate(fl.Field().String())
}

func validateGoalStatus(fl validator.FieldLevel) bool {
	s := types.GoalStatus(fl.Field().String())
	if s == types.GoalStatusLegacyCompleted {
		return true
	}
	for _, known := range types.GoalStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func validateClockTime(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if _, err := time.Parse("15:04", s); err == nil {
		return true
	}
	_, err := time.Parse(time.TimeOnly, s)
	return err == nil
}

// Check applies the struct rules to an already-typed value. value must be a
// struct or a pointer to one.
func (v *Validator) Check(value any) Errors {
	if err := v.v.Struct(value); err != nil {
		return ruleErrors(err)
	}
	return nil
}

// Validate strictly decodes raw into T and applies the struct rules. Unknown
// fields are rejected at every depth. Validate never panics; every failure is
// reported through the result.
func Validate[T any](v *Validator, raw []byte) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = Result[T]{Data: zero, Errors: Errors{{Rule: "internal", Message: fmt.Sprint(r)}}}
		}
	}()

	var data T
	if err := DecodeStrict(raw, &data); err != nil {
		return Result[T]{Errors: decodeErrors(err, raw, reflect.TypeOf(data))}
	}

	if errs := v.Check(&data); len(errs) > 0 {
		return Result[T]{Errors: errs}
	}
	return Result[T]{Success: true, Data: data}
}

// DecodeStrict decodes exactly one JSON value into out, rejecting unknown
// fields and trailing data
func DecodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// ValidateOrError validates raw and returns the data or a descriptive error.
// It is meant for call sites with no recovery path.
func ValidateOrError[T any](v *Validator, raw []byte) (T, error) {
	res := Validate[T](v, raw)
	if !res.Success {
		var zero T
		return zero, res.Errors
	}
	return res.Data, nil
}

// ValidateAppData validates a complete snapshot
func ValidateAppData(v *Validator, raw []byte) Result[types.AppData] {
	return Validate[types.AppData](v, raw)
}

// ValidateGoal validates a single goal
func ValidateGoal(v *Validator, raw []byte) Result[types.Goal] {
	return Validate[types.Goal](v, raw)
}

// CheckAppData applies the struct rules to a typed snapshot
func CheckAppData(v *Validator, data *types.AppData) Errors {
	return v.Check(data)
}

// CheckGoal applies the struct rules to a goal being created or edited. The
// legacy "completed" status is only accepted on read, so it is rejected here.
func CheckGoal(v *Validator, goal *types.Goal) Errors {
	errs := v.Check(goal)
	if goal.Status == types.GoalStatusLegacyCompleted {
		errs = append(errs, FieldError{
			Path:    "status",
			Rule:    "goalstatus",
			Message: fmt.Sprintf("%q is retired, use %q", goal.Status, types.GoalStatusDone),
		})
	}
	return errs
}

// InvalidGoal is a rejected element of a goals array
type InvalidGoal struct {
	Index  int
	Errors Errors
}

// GoalsArrayResult partitions a goals array. Every input element lands in
// exactly one of Valid or Invalid.
type GoalsArrayResult struct {
	Valid   []types.Goal
	Invalid []InvalidGoal
}

// ValidateGoalsArray validates each element of a JSON goals array
// independently. It fails only when raw is not a JSON array.
func ValidateGoalsArray(v *Validator, raw []byte) (GoalsArrayResult, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return GoalsArrayResult{}, fmt.Errorf("goals is not an array: %w", err)
	}

	res := GoalsArrayResult{Valid: make([]types.Goal, 0, len(elems))}
	for i, elem := range elems {
		goal := ValidateGoal(v, elem)
		if goal.Success {
			res.Valid = append(res.Valid, goal.Data)
			continue
		}
		res.Invalid = append(res.Invalid, InvalidGoal{
			Index:  i,
			Errors: goal.Errors.Prefix(fmt.Sprintf("goals[%d]", i)),
		})
	}
	return res, nil
}

// SanitizeString escapes the characters that are significant in HTML
// (& < > " ') so user text can be rendered as markup safely
func SanitizeString(s string) string {
	return html.EscapeString(s)
}
