package partuploader

import "runtime"

// Config holds configuration for the part uploader.
type Config struct {
	// Concurrency is the maximum number of parts in flight.
	// Default: 1, parts are sent strictly one after the other.
	Concurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 1,
	}
}

// ParallelConfig returns a configuration sized to the machine, capped at 8
// parts in flight since every part is buffered in memory.
func ParallelConfig() Config {
	c := runtime.NumCPU() * 2
	if c > 8 {
		c = 8
	}
	if c < 2 {
		c = 2
	}
	return Config{Concurrency: c}
}
