package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// Unit accepts either a bare string ("kg") or an object
// ({"code":"kg","label":"Kilogram"}) and normalizes it to a canonical unit.
type Unit struct {
	Code enums.Unit
}

type unitObject struct {
	Code  string `json:"code"`
	Value string `json:"value"`
	Name  string `json:"name"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Unit) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		u.Code = ""
		return nil
	}

	var raw string
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
	case '{':
		var obj unitObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		raw = firstNonEmpty(obj.Code, obj.Value, obj.Name)
	default:
		return fmt.Errorf("unit must be a string or object")
	}

	parsed, err := enums.ParseUnit(raw)
	if err != nil {
		return err
	}
	u.Code = parsed
	return nil
}

// MarshalJSON always emits the canonical string form.
func (u Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(u.Code))
}

// IsZero reports whether no unit was supplied.
func (u Unit) IsZero() bool {
	return u.Code == ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
