package enums

import (
	"fmt"
	"strings"
)

// Unit is the canonical measurement unit for produce quantities.
type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitGram     Unit = "g"
	UnitQuintal  Unit = "quintal"
	UnitTonne    Unit = "tonne"
	UnitLitre    Unit = "litre"
	UnitDozen    Unit = "dozen"
	UnitPiece    Unit = "piece"
	UnitBunch    Unit = "bunch"
	UnitCrate    Unit = "crate"
)

var validUnits = []Unit{
	UnitKilogram,
	UnitGram,
	UnitQuintal,
	UnitTonne,
	UnitLitre,
	UnitDozen,
	UnitPiece,
	UnitBunch,
	UnitCrate,
}

var unitAliases = map[string]Unit{
	"kgs":       UnitKilogram,
	"kilo":      UnitKilogram,
	"kilos":     UnitKilogram,
	"kilogram":  UnitKilogram,
	"kilograms": UnitKilogram,
	"gm":        UnitGram,
	"gms":       UnitGram,
	"gram":      UnitGram,
	"grams":     UnitGram,
	"qtl":       UnitQuintal,
	"quintals":  UnitQuintal,
	"ton":       UnitTonne,
	"tons":      UnitTonne,
	"tonnes":    UnitTonne,
	"l":         UnitLitre,
	"ltr":       UnitLitre,
	"liter":     UnitLitre,
	"liters":    UnitLitre,
	"litres":    UnitLitre,
	"dozens":    UnitDozen,
	"pc":        UnitPiece,
	"pcs":       UnitPiece,
	"pieces":    UnitPiece,
	"bunches":   UnitBunch,
	"crates":    UnitCrate,
}

// String implements fmt.Stringer.
func (u Unit) String() string {
	return string(u)
}

// IsValid reports whether the value is a canonical Unit.
func (u Unit) IsValid() bool {
	for _, candidate := range validUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUnit normalizes free-form unit input, accepting common spellings.
func ParseUnit(value string) (Unit, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validUnits {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	if alias, ok := unitAliases[normalized]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("invalid unit %q", value)
}
