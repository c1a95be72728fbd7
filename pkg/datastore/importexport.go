package datastore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cuemby/verdant/pkg/schema"
	"github.com/cuemby/verdant/pkg/types"
)

// ImportError describes a field or record left out of an import. Index is
// the position in the goals array, or -1 for a whole field.
type ImportError struct {
	Field    string   `json:"field"`
	Index    int      `json:"index"`
	Messages []string `json:"messages"`
}

// ImportResult summarizes a committed import
type ImportResult struct {
	// Salvaged is true when the document failed validation as a whole and
	// only its valid parts were kept
	Salvaged       bool          `json:"salvaged"`
	GoalsImported  int           `json:"goalsImported"`
	Dropped        int           `json:"dropped"`
	SalvagedFields []string      `json:"salvagedFields,omitempty"`
	Errors         []ImportError `json:"errors,omitempty"`
}

// ExportData renders the snapshot as an indented backup file
func (s *Store) ExportData() ([]byte, error) {
	data := s.Data()
	if data == nil {
		return nil, ErrNoData
	}

	backup := types.Backup{
		ExportedAt: types.FormatTimestamp(s.clock.Now()),
		StorageKey: s.storageKey,
		Data:       data,
	}
	return json.MarshalIndent(backup, "", "  ")
}

// unwrapBackup returns the AppData payload of raw, which may be a backup
// envelope or a bare snapshot
func unwrapBackup(raw []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("import is not a JSON object")
	}

	payload, hasData := obj["data"]
	_, hasExportedAt := obj["exportedAt"]
	_, hasKey := obj["storageKey"]
	if !hasData || (!hasExportedAt && !hasKey) {
		return raw, nil
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(payload, &inner); err != nil || inner == nil {
		return nil, fmt.Errorf("backup data is not a JSON object")
	}
	return payload, nil
}

// ImportData validates raw and commits it. A document that fails validation
// is salvaged: every valid top-level field and every valid goal is kept over
// the defaults and the rest is reported in the result. Only input that is not
// a JSON object is rejected without committing.
func (s *Store) ImportData(raw []byte) (ImportResult, error) {
	payload, err := unwrapBackup(raw)
	if err != nil {
		return ImportResult{}, err
	}

	res := schema.ValidateAppData(s.validator, payload)
	if res.Success {
		data := res.Data
		Migrate(&data)
		EnsureShape(&data, s.clock.Now())
		s.commit(&data)

		s.logger.Info().Int("goals", len(data.Goals)).Msg("Imported data")
		return ImportResult{GoalsImported: len(data.Goals)}, nil
	}

	data, result, err := s.salvage(payload)
	if err != nil {
		return ImportResult{}, err
	}
	s.commit(data)

	s.logger.Warn().
		Int("goals", result.GoalsImported).
		Int("dropped", result.Dropped).
		Strs("fields", result.SalvagedFields).
		Msg("Imported data with salvage")
	return result, nil
}

func (s *Store) salvage(payload []byte) (*types.AppData, ImportResult, error) {
	decoded, fieldErrs, err := types.DecodeFields(payload, schema.DecodeStrict)
	if err != nil {
		return nil, ImportResult{}, err
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(payload, &present); err != nil {
		return nil, ImportResult{}, err
	}

	result := ImportResult{Salvaged: true}
	base := CreateDefaultData(s.clock.Now())
	// Salvaged data has no trusted version, so every migration runs
	base.Version = 1

	names := make([]string, 0, len(present))
	for name := range present {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "goals" {
			s.salvageGoals(present[name], base, &result)
			continue
		}

		if err, failed := fieldErrs[name]; failed {
			result.Errors = append(result.Errors, ImportError{Field: name, Index: -1, Messages: []string{err.Error()}})
			result.Dropped++
			continue
		}

		candidate := base.Clone()
		types.CopyField(name, candidate, decoded)
		if errs := schema.CheckAppData(s.validator, candidate); len(errs) > 0 {
			result.Errors = append(result.Errors, ImportError{Field: name, Index: -1, Messages: errs.Messages()})
			result.Dropped++
			continue
		}

		base = candidate
		result.SalvagedFields = append(result.SalvagedFields, name)
	}

	Migrate(base)
	EnsureShape(base, s.clock.Now())
	return base, result, nil
}

func (s *Store) salvageGoals(raw json.RawMessage, base *types.AppData, result *ImportResult) {
	goals, err := schema.ValidateGoalsArray(s.validator, raw)
	if err != nil {
		result.Errors = append(result.Errors, ImportError{Field: "goals", Index: -1, Messages: []string{err.Error()}})
		result.Dropped++
		return
	}

	base.Goals = goals.Valid
	result.GoalsImported = len(goals.Valid)
	result.SalvagedFields = append(result.SalvagedFields, "goals")
	for _, inv := range goals.Invalid {
		result.Errors = append(result.Errors, ImportError{Field: "goals", Index: inv.Index, Messages: inv.Errors.Messages()})
		result.Dropped++
	}
}
