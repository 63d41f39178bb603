package record

// Declared column types.
const (
	TypeString = "STRING"
	TypeInt    = "INT"
)

// Table names.
const (
	TableVehicles = "bmw_vehicles"
	TableRecalls  = "bmw_recalls"
)

// Column is a declared destination column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Table describes one destination table.
type Table struct {
	Name       string   `json:"table"`
	PrimaryKey []string `json:"primary_key"`
	Columns    []Column `json:"-"`
}

// ColumnTypes returns the column name to declared type mapping.
func (t Table) ColumnTypes() map[string]string {
	out := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c.Type
	}
	return out
}

// ColumnNames returns the columns in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// IsKey reports whether column is part of the primary key.
func (t Table) IsKey(column string) bool {
	for _, k := range t.PrimaryKey {
		if k == column {
			return true
		}
	}
	return false
}

// Vehicles is the bmw_vehicles table.
var Vehicles = Table{
	Name:       TableVehicles,
	PrimaryKey: []string{"vin"},
	Columns: []Column{
		{"vin", TypeString},
		{"series", TypeString},
		{"model_year", TypeInt},
		{"model_name", TypeString},
		{"body_type", TypeString},
		{"engine_type", TypeString},
		{"transmission", TypeString},
		{"drive_type", TypeString},
		{"manufacturing_plant", TypeString},
		{"production_date", TypeString},
		{"decoded_date", TypeString},
	},
}

// Recalls is the bmw_recalls table.
var Recalls = Table{
	Name:       TableRecalls,
	PrimaryKey: []string{"vin", "campaign_number"},
	Columns: []Column{
		{"vin", TypeString},
		{"campaign_number", TypeString},
		{"component", TypeString},
		{"summary", TypeString},
		{"consequence", TypeString},
		{"remedy", TypeString},
		{"recall_date", TypeString},
	},
}

// Tables lists every table the connector knows.
var Tables = []Table{Vehicles, Recalls}

// LookupTable returns the table called name.
func LookupTable(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
