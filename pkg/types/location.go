package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Location is the normalized delivery location stored on an order. Clients may
// send a free-form string or a structured object; both decode into this shape.
type Location struct {
	Label      string   `json:"label,omitempty"`
	Line1      string   `json:"line1,omitempty"`
	Village    string   `json:"village,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// locationAlias avoids recursing into UnmarshalJSON.
type locationAlias Location

type locationInput struct {
	locationAlias
	Address string `json:"address"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = Location{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*l = Location{Label: strings.TrimSpace(raw)}
	case '{':
		var in locationInput
		if err := json.Unmarshal(trimmed, &in); err != nil {
			return err
		}
		loc := Location(in.locationAlias)
		if loc.Line1 == "" {
			loc.Line1 = in.Address
		}
		if loc.District == "" {
			loc.District = in.City
		}
		if loc.PostalCode == "" {
			loc.PostalCode = in.Pincode
		}
		*l = loc.normalized()
	default:
		return fmt.Errorf("location must be a string or object")
	}
	return nil
}

func (l Location) normalized() Location {
	l.Label = strings.TrimSpace(l.Label)
	l.Line1 = strings.TrimSpace(l.Line1)
	l.Village = strings.TrimSpace(l.Village)
	l.District = strings.TrimSpace(l.District)
	l.State = strings.TrimSpace(l.State)
	l.PostalCode = strings.TrimSpace(l.PostalCode)
	l.Country = strings.ToUpper(strings.TrimSpace(l.Country))
	if l.Label == "" {
		parts := make([]string, 0, 4)
		for _, p := range []string{l.Line1, l.Village, l.District, l.State} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		l.Label = strings.Join(parts, ", ")
	}
	return l
}

// IsZero reports whether no location information was supplied.
func (l Location) IsZero() bool {
	return l.Label == "" && l.Line1 == "" && l.Lat == nil && l.Lng == nil
}
