package catalog

// Metric is a measurable fitness quantity which goals can be set
// against, e.g. running distance or muscle mass.
type Metric struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}
