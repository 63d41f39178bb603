// Package vin holds the static BMW knowledge used to interpret a VIN: the
// accepted manufacturer prefixes, the plant code table and the series
// classifier, plus the error taxonomy of the connector.
package vin

// Length is the only accepted VIN length.
const Length = 17

// plantPosition is the 0-indexed VIN position carrying the plant code.
const plantPosition = 11

// Unknown is the fallback used for any attribute that cannot be derived.
const Unknown = "Unknown"

// Prefixes are the world manufacturer identifiers accepted as BMW.
var Prefixes = []string{"WBA", "WBS", "WBY", "4US"}

var plantCodes = map[byte]string{
	'A': "Greer, SC, USA",
	'B': "Dingolfing, Germany",
	'C': "Munich, Germany",
	'L': "Leipzig, Germany",
	'N': "Regensburg, Germany",
	'P': "Munich, Germany",
	'R': "Spartanburg, SC, USA",
	'U': "Rosslyn, South Africa",
	'W': "Born, Netherlands",
}

// Validate checks the VIN length and manufacturer prefix.
func Validate(v string) error {
	if len(v) != Length {
		return NewValidationError("vin", v, ErrInvalidLength)
	}
	for _, p := range Prefixes {
		if v[:3] == p {
			return nil
		}
	}
	return NewValidationError("vin", v, ErrUnsupportedPrefix)
}

// Plant returns the manufacturing plant encoded at position 11, or Unknown
// when the code is not in the table or the VIN is too short to carry one.
func Plant(v string) string {
	if len(v) <= plantPosition {
		return Unknown
	}
	if p, ok := plantCodes[v[plantPosition]]; ok {
		return p
	}
	return Unknown
}
