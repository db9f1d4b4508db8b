package models

// SensorFilters narrows a sensor listing; all set filters must match.
type SensorFilters struct {
	Type     string `json:"type" schema:"type"`
	Location string `json:"location" schema:"location"`
	// Sort is a column name, optionally prefixed with "-" for descending.
	Sort string `json:"sort" schema:"sort"`
}

// TimeRange is an inclusive range of unix seconds
type TimeRange struct {
	Start int64 `json:"start" schema:"start"`
	End   int64 `json:"end" schema:"end"`
}
