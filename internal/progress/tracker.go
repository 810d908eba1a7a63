package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
)

// Tracker renders a live row counter for one dataset migration.
type Tracker struct {
	bar       *progressbar.ProgressBar
	total     int64
	current   atomic.Int64
	startTime time.Time
}

// NewTracker creates a tracker for a dataset with a known row count.
// Pass startAt > 0 when resuming so the bar opens at the saved
// position instead of zero.
func NewTracker(dataset string, total, startAt int64) *Tracker {
	t := &Tracker{
		total:     total,
		startTime: time.Now(),
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(fmt.Sprintf("Migrating %s", dataset)),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
	if startAt > 0 {
		t.current.Store(startAt)
		t.bar.Add64(startAt)
	}
	return t
}

// Add advances the counter by n rows.
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Current returns the current row count.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish closes the bar and logs the run summary.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / elapsed.Seconds()

	fmt.Println()
	logging.Info("Migration pass complete: %d rows in %s (%.0f rows/sec)",
		t.current.Load(), elapsed.Round(time.Second), rowsPerSec)
}
