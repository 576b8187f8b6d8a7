package config

import "time"

const (
	DefaultQueueMaxSize = 100
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopGrace    = 2 * time.Second
)

// QueueCapacity returns the configured queue size.
// Defaults to DefaultQueueMaxSize when unset or invalid.
func (c Config) QueueCapacity() int {
	if c.QueueMaxSize < 1 {
		return DefaultQueueMaxSize
	}
	return c.QueueMaxSize
}

// PollInterval is how long the worker blocks on an empty queue before
// checking for a stop request.
func (c Config) PollInterval() time.Duration {
	if c.WorkerPollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.WorkerPollInterval
}

// StopGrace bounds how long shutdown waits for the worker loop to exit.
func (c Config) StopGrace() time.Duration {
	if c.WorkerStopGrace <= 0 {
		return DefaultStopGrace
	}
	return c.WorkerStopGrace
}
