package sorter

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Resources are the limits handed to the sort engine, derived from the
// host so sorting a many-gigabyte file never exhausts memory or starves
// the other stages.
type Resources struct {
	MemoryBytes int64
	Threads     int
}

const meminfoPath = "/proc/meminfo"

// DetectResources sizes the sort engine: a fraction of available memory
// clamped to a floor and ceiling, and half the physical cores.
func DetectResources(fraction float64, minBytes, maxBytes int64) Resources {
	avail := availableMemory()
	mem := int64(float64(avail) * fraction)
	if mem < minBytes {
		mem = minBytes
	}
	if mem > maxBytes {
		mem = maxBytes
	}

	threads := runtime.NumCPU() / 2
	if threads < 2 {
		threads = 2
	}

	zap.L().Debug("sorter: host resources detected",
		zap.Int64("available_bytes", avail),
		zap.Int64("memory_limit_bytes", mem),
		zap.Int("threads", threads),
	)
	return Resources{MemoryBytes: mem, Threads: threads}
}

// availableMemory reads MemAvailable from /proc/meminfo, falling back to
// MemTotal and finally to a conservative fixed figure on hosts without a
// readable meminfo.
func availableMemory() int64 {
	const fallback = 2 << 30

	f, err := os.Open(meminfoPath)
	if err != nil {
		return fallback
	}
	defer f.Close() //nolint:errcheck

	var memTotal int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemAvailable":
			return kb * 1024
		case "MemTotal":
			memTotal = kb * 1024
		}
	}
	if memTotal > 0 {
		return memTotal
	}
	return fallback
}
