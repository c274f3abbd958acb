package testevents

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Sessions  int           // Number of sessions to stream
	Casts     int           // Casts generated per session
	BatchSize int           // Events per submitted batch
	Workers   int           // Sessions streamed concurrently
	Timeout   time.Duration // HTTP request timeout
	Seed      uint64        // Base seed; session i uses Seed+i
	Samples   int           // Cause queries checked per session
	Verbose   bool          // Log every session result
}

// Stats holds load test statistics.
type Stats struct {
	SessionsOpened   int
	SessionsVerified int
	SessionsFailed   int
	EventsSubmitted  int
	BatchesAccepted  int
	BatchesDuplicate int
	BatchesFailed    int
	CausesChecked    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
