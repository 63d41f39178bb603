// Package record maps raw vPIC payloads onto the rows of the bmw_vehicles and
// bmw_recalls tables and declares those tables' schema.
package record

import "github.com/WessleyAI/vinsync/engine/vin"

// Record is a single destination row keyed by column name.
type Record map[string]any

// VehicleRecord is one decoded VIN.
type VehicleRecord struct {
	VIN                string     `json:"vin"`
	Series             vin.Series `json:"series"`
	ModelYear          int        `json:"model_year"`
	ModelName          string     `json:"model_name"`
	BodyType           string     `json:"body_type"`
	EngineType         string     `json:"engine_type"`
	Transmission       string     `json:"transmission"`
	DriveType          string     `json:"drive_type"`
	ManufacturingPlant string     `json:"manufacturing_plant"`
	ProductionDate     *string    `json:"production_date"`
	DecodedDate        string     `json:"decoded_date"`
}

// Record converts v to a bmw_vehicles row. production_date is nil when the
// decode response carried no DateProduced.
func (v VehicleRecord) Record() Record {
	var produced any
	if v.ProductionDate != nil {
		produced = *v.ProductionDate
	}
	return Record{
		"vin":                 v.VIN,
		"series":              v.Series.String(),
		"model_year":          v.ModelYear,
		"model_name":          v.ModelName,
		"body_type":           v.BodyType,
		"engine_type":         v.EngineType,
		"transmission":        v.Transmission,
		"drive_type":          v.DriveType,
		"manufacturing_plant": v.ManufacturingPlant,
		"production_date":     produced,
		"decoded_date":        v.DecodedDate,
	}
}

// RecallRecord is one recall campaign affecting a VIN. (VIN, CampaignNumber)
// is the row identity.
type RecallRecord struct {
	VIN            string `json:"vin"`
	CampaignNumber string `json:"campaign_number"`
	Component      string `json:"component"`
	Summary        string `json:"summary"`
	Consequence    string `json:"consequence"`
	Remedy         string `json:"remedy"`
	RecallDate     string `json:"recall_date"`
}

// Record converts r to a bmw_recalls row.
func (r RecallRecord) Record() Record {
	return Record{
		"vin":             r.VIN,
		"campaign_number": r.CampaignNumber,
		"component":       r.Component,
		"summary":         r.Summary,
		"consequence":     r.Consequence,
		"remedy":          r.Remedy,
		"recall_date":     r.RecallDate,
	}
}

// RawRecall is a recall entry exactly as returned by the recalls endpoint.
type RawRecall map[string]any
