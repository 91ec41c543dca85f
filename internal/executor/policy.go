package executor

import "time"

// Policy bounds a run.
type Policy struct {
	Timeout      time.Duration // zero means no deadline
	MaxOutput    int           // per stream, in bytes; zero means unlimited
	AutoImport   bool          // pre-import the standard library for bare fragments
	Unrestricted bool          // expose os/exec and the real environment
}

// DefaultPolicy returns the limits used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    30 * time.Second,
		AutoImport: true,
	}
}
