package vin

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"WBA3A5C51CF256651", nil},
		{"WBS3A5C51CF256651", nil},
		{"WBY3A5C51CF256651", nil},
		{"4US3A5C51CF256651", nil},
		{"5UXCW2C09L9C15882", ErrUnsupportedPrefix},
		{"1HGCM82633A004352", ErrUnsupportedPrefix},
		{"WBA3A5C51", ErrInvalidLength},
		{"", ErrInvalidLength},
		{"WBA3A5C51CF2566510", ErrInvalidLength},
	}
	for _, tt := range tests {
		err := Validate(tt.in)
		if tt.want == nil {
			if err != nil {
				t.Errorf("Validate(%q): unexpected error %v", tt.in, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("Validate(%q): expected %v, got %v", tt.in, tt.want, err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "vin" {
			t.Errorf("Validate(%q): expected ValidationError on vin, got %T", tt.in, err)
		}
	}
}

func TestPlant(t *testing.T) {
	tests := []struct {
		vin  string
		want string
	}{
		{"WBA3A5C51CFC56651", "Munich, Germany"},
		{"WBA3A5C51CFZ56651", Unknown},
		{"WBA3A5C51CFA56651", "Greer, SC, USA"},
		{"WBA3A5C51CFW56651", "Born, Netherlands"},
		{"WBA3A5C51CFL56651", "Leipzig, Germany"},
		{"WBA", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		if got := Plant(tt.vin); got != tt.want {
			t.Errorf("Plant(%q) = %q, want %q", tt.vin, got, tt.want)
		}
	}
}

func TestClassifySeries(t *testing.T) {
	tests := []struct {
		model string
		want  Series
	}{
		{"330i", Series3},
		{"X3", Series3},
		{"X5 M", Series5},
		{"M340i", Series3},
		{"X", SeriesX},
		{"iX", SeriesX},
		{"M", SeriesM},
		{"i", SeriesI},
		{"Z", SeriesUnknown},
		{"", SeriesUnknown},
		{"Unknown", SeriesUnknown},
		{"135i", Series1},
		{"8 Series", Series8},
	}
	for _, tt := range tests {
		if got := ClassifySeries(tt.model); got != tt.want {
			t.Errorf("ClassifySeries(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestClassifySeriesDeclarationOrder(t *testing.T) {
	// Codes 3 and 5 both appear: the one declared first wins.
	if got := ClassifySeries("35"); got != Series3 {
		t.Fatalf("expected Series3, got %s", got)
	}
	if got := ClassifySeries("53"); got != Series3 {
		t.Fatalf("expected Series3 regardless of position, got %s", got)
	}
	for i, s := range AllSeries {
		if i > 0 && s == AllSeries[i-1] {
			t.Fatalf("duplicate series %s", s)
		}
	}
	if AllSeries[len(AllSeries)-1] != SeriesUnknown {
		t.Fatal("Unknown must be declared last")
	}
}

func TestConversionError(t *testing.T) {
	inner := errors.New("strconv.Atoi: parsing \"abc\": invalid syntax")
	err := error(&ConversionError{Field: "ModelYear", Value: "abc", Err: inner})
	if !errors.Is(err, ErrConversion) {
		t.Fatal("expected ErrConversion")
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected wrapped cause")
	}
	if !strings.Contains(err.Error(), "ModelYear") {
		t.Fatalf("expected field in message: %s", err)
	}
}
