package capture

import "time"

// CaptureStats summarises provider behaviour for instrumentation.
type CaptureStats struct {
	Captures    uint64
	Failures    uint64
	AvgCapture  time.Duration
	LastCapture time.Time
	LastError   string
}
