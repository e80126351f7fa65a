package runner

import (
	"encoding/json"
	"sort"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// BuildSnapshot projects a step outcome into a UI-renderable snapshot. Known
// evidence shapes get bespoke renderings; everything else falls back to a
// structural rendering chosen by inspection. It never fails: unrecognized
// data degrades to raw JSON.
func BuildSnapshot(stepKey string, outcome saga.Outcome) map[string]any {
	data := outcome.Payload
	if data == nil && outcome.Evidence != nil {
		data = outcome.Evidence
	}

	snapshot := map[string]any{
		"stepKey": stepKey,
		"status":  string(outcome.Status),
	}
	if outcome.Message != "" {
		snapshot["message"] = outcome.Message
	}

	switch {
	case hasKey(data, "accountState"):
		snapshot["kind"] = "account"
		snapshot["view"] = data["accountState"]
	case hasKey(data, "booking"):
		snapshot["kind"] = "booking-confirmation"
		snapshot["view"] = data["booking"]
	case hasKey(data, "calendar"):
		snapshot["kind"] = "calendar"
		snapshot["view"] = data["calendar"]
	default:
		kind, view := structuralView(data)
		snapshot["kind"] = kind
		snapshot["view"] = view
	}
	return snapshot
}

func hasKey(data map[string]any, key string) bool {
	if data == nil {
		return false
	}
	_, ok := data[key]
	return ok
}

// structuralView picks a generic rendering by shape: a homogeneous list of
// objects renders as a table, a flat map as key-value rows, anything else as
// raw JSON.
func structuralView(data map[string]any) (string, any) {
	if data == nil {
		return "empty", nil
	}

	// Single list-of-objects payloads render as a table.
	if len(data) == 1 {
		for _, v := range data {
			if rows, ok := tableRows(v); ok {
				return "table", rows
			}
		}
	}

	if flat(data) {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, map[string]any{"key": k, "value": data[k]})
		}
		return "key-value", rows
	}

	raw, err := json.Marshal(data)
	if err != nil {
		// Unmarshalable values still must render; fall back to Go syntax.
		return "raw", "unrenderable payload"
	}
	return "raw", string(raw)
}

// tableRows returns the value as table rows when it is a non-empty slice of
// objects.
func tableRows(v any) ([]map[string]any, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

// flat reports whether every value in the map is a scalar.
func flat(data map[string]any) bool {
	for _, v := range data {
		switch v.(type) {
		case nil, string, bool, int, int64, float64, json.Number:
		default:
			return false
		}
	}
	return true
}
