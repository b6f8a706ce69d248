package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	fieldCPU    = "cpu"
	fieldMemory = "memory"
	fieldDisk   = "disk"
)

// decodeMetrics reads an agent /metrics document field by field. Fields
// that are absent or malformed are taken from placeholder and reported in
// defaulted. Only a body that is not a JSON object is an error.
func decodeMetrics(body []byte, placeholder Metrics, now time.Time) (Metrics, []string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return Metrics{}, nil, fmt.Errorf("decode metrics: %w", err)
	}
	if doc == nil {
		return Metrics{}, nil, errors.New("decode metrics: body is not an object")
	}

	m := Metrics{Timestamp: now}
	var defaulted []string

	if cpu, ok := decodeNumber(doc[fieldCPU]); ok {
		m.CPU = cpu
	} else {
		m.CPU = placeholder.CPU
		defaulted = append(defaulted, fieldCPU)
	}

	if mem, ok := decodeUsage(doc[fieldMemory]); ok {
		m.Memory = mem
	} else {
		m.Memory = placeholder.Memory
		defaulted = append(defaulted, fieldMemory)
	}

	if disk, ok := decodeUsage(doc[fieldDisk]); ok {
		m.Disk = disk
	} else {
		m.Disk = placeholder.Disk
		defaulted = append(defaulted, fieldDisk)
	}

	// Optional fields are passed through when valid and never invented.
	if uptime, ok := decodeNumber(doc["uptime"]); ok {
		m.Uptime = &uptime
	}
	if raw, ok := doc["loadAverage"]; ok {
		var load []float64
		if err := json.Unmarshal(raw, &load); err == nil && len(load) > 0 {
			m.LoadAverage = load
		}
	}

	return m, defaulted, nil
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return 0, false
	}
	return *v, true
}

// decodeUsage accepts {used, total, percentage}. A missing percentage is
// derived from used and total; used and total are required.
func decodeUsage(raw json.RawMessage) (Usage, bool) {
	if raw == nil {
		return Usage{}, false
	}
	var u struct {
		Used       *float64 `json:"used"`
		Total      *float64 `json:"total"`
		Percentage *float64 `json:"percentage"`
	}
	if err := json.Unmarshal(raw, &u); err != nil || u.Used == nil || u.Total == nil {
		return Usage{}, false
	}
	if u.Percentage != nil {
		return Usage{Used: *u.Used, Total: *u.Total, Percentage: *u.Percentage}, true
	}
	return usage(*u.Used, *u.Total), true
}
