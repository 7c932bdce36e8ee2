package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeJSON serialisiert v für eine jsonb-Spalte. Nicht serialisierbare Werte werden zu "null".
func EncodeJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

// DecodeStrings liest eine JSON-Liste von Strings; defekte oder leere Werte ergeben nil.
func DecodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// DecodeMap liest ein JSON-Objekt; defekte oder leere Werte ergeben eine leere Map.
func DecodeMap(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
