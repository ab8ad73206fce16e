// Package tuner detects CPU and memory resources and derives sizing
// decisions from them: thread pool widths, job queue depth, and a
// suggested memory limit.
package tuner

import "runtime"

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPUs usable by this process.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is an estimate of free RAM in bytes.
	AvailableRAM int64
}

const (
	minQueueSize = 256
	maxQueueSize = 65536

	// bytesPerJob approximates one queued job: path, ancestor slice header, counters.
	bytesPerJob = 256

	// queueMemoryFraction is the share of available RAM the job queue may occupy.
	queueMemoryFraction = 0.01

	// suggestedLimitFraction of total RAM is offered as a memory limit.
	suggestedLimitFraction = 0.8
)

// Detect returns the resources of the current machine. CPU detection never
// fails; when memory cannot be read a conservative default is returned
// together with the error.
func Detect() (SystemResources, error) {
	res := SystemResources{CPUCores: runtime.NumCPU()}
	total, avail, err := detectMemory()
	if err != nil {
		res.TotalRAM = defaultTotalRAM
		res.AvailableRAM = defaultTotalRAM / 2
		return res, err
	}
	res.TotalRAM = total
	res.AvailableRAM = avail
	return res, nil
}

// defaultTotalRAM is assumed when detection fails.
const defaultTotalRAM int64 = 8 << 30

// QueueSize returns the job channel capacity for the given resources.
func QueueSize(res SystemResources) int {
	entries := int(float64(res.AvailableRAM) * queueMemoryFraction / bytesPerJob)
	return min(max(entries, minQueueSize), maxQueueSize)
}

// SuggestedMemoryLimit returns 80% of total RAM.
func SuggestedMemoryLimit(res SystemResources) int64 {
	return int64(float64(res.TotalRAM) * suggestedLimitFraction)
}
