package checkpointer

import "time"

// Config holds the write policy for checkpoints.
type Config struct {
	WriteTimeout time.Duration // Timeout for each checkpoint write operation
	MaxRetries   int           // Additional attempts after a failed write
	RetryBackoff time.Duration // Backoff duration between retry attempts
}

// DefaultConfig returns a single-attempt policy: a failed write surfaces immediately.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		MaxRetries:   0,
		RetryBackoff: 300 * time.Millisecond,
	}
}
