package models

// Usage is a used/total pair in gigabytes with its percentage.
type Usage struct {
	Used       float64 `json:"used"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// MetricsReport is the JSON document a host agent serves at /metrics and
// the dashboard poller decodes.
type MetricsReport struct {
	CPU         float64   `json:"cpu"`
	Memory      Usage     `json:"memory"`
	Disk        Usage     `json:"disk"`
	Uptime      *float64  `json:"uptime,omitempty"` // seconds
	LoadAverage []float64 `json:"loadAverage,omitempty"`
}
