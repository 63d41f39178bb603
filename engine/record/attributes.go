package record

// Attribute is one {Variable, Value} pair of a decodevin response.
type Attribute struct {
	Variable string `json:"Variable"`
	Value    string `json:"Value"`
}

// Attributes maps vPIC variable names to their values.
type Attributes map[string]string

// Project builds Attributes from a decodevin result list. Pairs whose value
// is empty (or JSON null) or the literal "0" are dropped so the field falls
// back to its default. A repeated variable keeps its last value.
func Project(results []Attribute) Attributes {
	out := make(Attributes, len(results))
	for _, a := range results {
		if a.Value == "" || a.Value == "0" {
			continue
		}
		out[a.Variable] = a.Value
	}
	return out
}

// Get returns the value for key or fallback when it is absent.
func (a Attributes) Get(key, fallback string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return fallback
}

// Lookup returns the value for key and whether it was present.
func (a Attributes) Lookup(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}
