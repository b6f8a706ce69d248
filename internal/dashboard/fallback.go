package dashboard

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const (
	fallbackMemoryTotal = 8.0
	fallbackDiskTotal   = 256.0
)

// FallbackMetrics generates the demo snapshot shown when a server cannot
// report real numbers. Values are plausible and stable per server id:
// CPU 25-75%, 2-6 of 8 GB memory, 50-150 of 256 GB disk.
func FallbackMetrics(id uuid.UUID, now time.Time) Metrics {
	h := fnv.New64a()
	h.Write(id[:])
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	memUsed := round2(2 + rng.Float64()*4)
	diskUsed := round2(50 + rng.Float64()*100)
	return Metrics{
		CPU:       round2(25 + rng.Float64()*50),
		Memory:    usage(memUsed, fallbackMemoryTotal),
		Disk:      usage(diskUsed, fallbackDiskTotal),
		Timestamp: now,
	}
}

func usage(used, total float64) Usage {
	u := Usage{Used: used, Total: total}
	if total > 0 {
		u.Percentage = round2(used / total * 100)
	}
	return u
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
