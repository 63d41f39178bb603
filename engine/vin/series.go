package vin

import "strings"

// Series is a BMW model line.
type Series string

// Declaration order is the classification tie-break order.
const (
	Series1       Series = "1"
	Series2       Series = "2"
	Series3       Series = "3"
	Series4       Series = "4"
	Series5       Series = "5"
	Series6       Series = "6"
	Series7       Series = "7"
	Series8       Series = "8"
	SeriesX       Series = "X"
	SeriesM       Series = "M"
	SeriesI       Series = "i"
	SeriesUnknown Series = "Unknown"
)

// AllSeries lists every series in declaration order.
var AllSeries = []Series{
	Series1, Series2, Series3, Series4, Series5, Series6, Series7, Series8,
	SeriesX, SeriesM, SeriesI, SeriesUnknown,
}

func (s Series) String() string { return string(s) }

// ClassifySeries returns the first series, in declaration order, whose code
// is a substring of the model name. "X3" is Series3 because 3 precedes X.
// The Unknown entry participates too, so a model literally named "Unknown"
// classifies as SeriesUnknown.
func ClassifySeries(model string) Series {
	for _, s := range AllSeries {
		if strings.Contains(model, string(s)) {
			return s
		}
	}
	return SeriesUnknown
}
