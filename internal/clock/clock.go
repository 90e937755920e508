// Package clock isolates wall-clock and monotonic time behind one interface
// so the rest of the gateway never calls the OS for time directly.
package clock

import (
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

// Clock provides UTC wall time, monotonic elapsed time since process start,
// and an NTP-sync predicate.
type Clock interface {
	NowUTC() time.Time
	Monotonic() time.Duration
	IsTimeSynced() bool
	// MarkSynced flags the clock as synced. Called by the upstream publisher
	// after the first successful HTTPS round-trip on platforms without a
	// time-sync daemon.
	MarkSynced()
}

// SystemClock is the production Clock backed by the OS and timedatectl.
type SystemClock struct {
	start  time.Time
	synced atomic.Bool

	// daemonSynced is injectable so tests never shell out.
	daemonSynced func() bool
}

func NewSystemClock() *SystemClock {
	return &SystemClock{
		start:        time.Now(),
		daemonSynced: timedatectlSynced,
	}
}

func (c *SystemClock) NowUTC() time.Time {
	return time.Now().UTC()
}

// Monotonic returns elapsed time since process start. time.Since uses the
// monotonic reading, so NTP steps do not affect it.
func (c *SystemClock) Monotonic() time.Duration {
	return time.Since(c.start)
}

func (c *SystemClock) IsTimeSynced() bool {
	if c.synced.Load() {
		return true
	}
	if c.daemonSynced != nil && c.daemonSynced() {
		c.synced.Store(true)
		return true
	}
	return false
}

func (c *SystemClock) MarkSynced() {
	c.synced.Store(true)
}

// timedatectlSynced asks systemd-timesyncd whether NTP sync was reached.
// Returns false on any failure (missing binary, non-systemd platform).
func timedatectlSynced() bool {
	out, err := exec.Command("timedatectl", "show", "--property=NTPSynchronized", "--value").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "yes"
}
