// Package agent is the small HTTP service installed on a managed host. It
// answers the dashboard's /health and /metrics calls.
package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const gib = 1 << 30

// Sampler produces one metrics report for the local host.
type Sampler interface {
	Sample(ctx context.Context) (models.MetricsReport, error)
}

// HostSampler reads the host through gopsutil. CPU is measured over
// CPUWindow; disk usage is taken for DiskPath.
type HostSampler struct {
	DiskPath  string
	CPUWindow time.Duration
}

func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{DiskPath: diskPath, CPUWindow: 250 * time.Millisecond}
}

func (s *HostSampler) Sample(ctx context.Context) (models.MetricsReport, error) {
	var report models.MetricsReport

	percents, err := cpu.PercentWithContext(ctx, s.CPUWindow, false)
	if err != nil {
		return report, fmt.Errorf("cpu: %w", err)
	}
	if len(percents) > 0 {
		report.CPU = round2(clamp(percents[0]))
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return report, fmt.Errorf("memory: %w", err)
	}
	report.Memory = usage(vm.Used, vm.Total, vm.UsedPercent)

	du, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return report, fmt.Errorf("disk %s: %w", s.DiskPath, err)
	}
	report.Disk = usage(du.Used, du.Total, du.UsedPercent)

	// Uptime and load are optional in the report.
	if up, err := host.UptimeWithContext(ctx); err == nil {
		seconds := float64(up)
		report.Uptime = &seconds
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		report.LoadAverage = []float64{round2(avg.Load1), round2(avg.Load5), round2(avg.Load15)}
	}

	return report, nil
}

func usage(used, total uint64, percent float64) models.Usage {
	return models.Usage{
		Used:       round2(float64(used) / gib),
		Total:      round2(float64(total) / gib),
		Percentage: round2(clamp(percent)),
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
