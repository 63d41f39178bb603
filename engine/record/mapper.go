package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/vinsync/engine/vin"
)

// vPIC variable names read by the vehicle mapping.
const (
	VarModel               = "Model"
	VarModelYear           = "ModelYear"
	VarBodyClass           = "BodyClass"
	VarEngineConfiguration = "EngineConfiguration"
	VarTransmissionStyle   = "TransmissionStyle"
	VarDriveType           = "DriveType"
	VarDateProduced        = "DateProduced"
)

// Recall entry keys and their defaults.
const (
	KeyCampaignNumber     = "CampaignNumber"
	KeyComponent          = "Component"
	KeySummary            = "Summary"
	KeyConsequence        = "Consequence"
	KeyRemedy             = "Remedy"
	KeyReportReceivedDate = "ReportReceivedDate"
)

// Mapper turns raw vPIC data into records. It stamps every VehicleRecord
// with the clock reading taken while that record is built.
type Mapper struct {
	now func() time.Time
}

// NewMapper creates a Mapper on the wall clock.
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// NewMapperWithClock creates a Mapper reading time from now.
func NewMapperWithClock(now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{now: now}
}

// Vehicle builds the VehicleRecord for v. A ModelYear that is present but
// not an integer is a *vin.ConversionError; an absent one is 0.
func (m *Mapper) Vehicle(v string, attrs Attributes) (VehicleRecord, error) {
	model := attrs.Get(VarModel, vin.Unknown)

	year := 0
	if raw, ok := attrs.Lookup(VarModelYear); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return VehicleRecord{}, &vin.ConversionError{Field: VarModelYear, Value: raw, Err: err}
		}
		year = n
	}

	var produced *string
	if raw, ok := attrs.Lookup(VarDateProduced); ok {
		produced = &raw
	}

	return VehicleRecord{
		VIN:                v,
		Series:             vin.ClassifySeries(model),
		ModelYear:          year,
		ModelName:          model,
		BodyType:           attrs.Get(VarBodyClass, vin.Unknown),
		EngineType:         attrs.Get(VarEngineConfiguration, vin.Unknown),
		Transmission:       attrs.Get(VarTransmissionStyle, vin.Unknown),
		DriveType:          attrs.Get(VarDriveType, vin.Unknown),
		ManufacturingPlant: vin.Plant(v),
		ProductionDate:     produced,
		DecodedDate:        m.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Recall builds the RecallRecord for one raw recall entry of v. Each field
// falls back to its own default when the key is missing or null.
func (m *Mapper) Recall(v string, raw RawRecall) RecallRecord {
	return RecallRecord{
		VIN:            v,
		CampaignNumber: field(raw, KeyCampaignNumber, vin.Unknown),
		Component:      field(raw, KeyComponent, vin.Unknown),
		Summary:        field(raw, KeySummary, ""),
		Consequence:    field(raw, KeyConsequence, ""),
		Remedy:         field(raw, KeyRemedy, ""),
		RecallDate:     field(raw, KeyReportReceivedDate, ""),
	}
}

// Recalls maps every entry of a recall list, keeping the API order.
func (m *Mapper) Recalls(v string, raws []RawRecall) []RecallRecord {
	out := make([]RecallRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, m.Recall(v, r))
	}
	return out
}

func field(raw RawRecall, key, fallback string) string {
	val, ok := raw[key]
	if !ok || val == nil {
		return fallback
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprint(val)
}
