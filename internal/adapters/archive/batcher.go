package archive

import "time"

// row is a pending insert: exactly one field is set.
type row struct {
	frame   *FrameRow
	command *CommandRow
}

// batcher accumulates rows until a size or time trigger fires.
type batcher struct {
	rows      []row
	maxRows   int
	interval  time.Duration
	lastFlush time.Time
	now       func() time.Time
}

func newBatcher(maxRows int, interval time.Duration) *batcher {
	return &batcher{
		maxRows:   maxRows,
		interval:  interval,
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

// Add appends r and reports whether the size trigger fired.
func (b *batcher) Add(r row) bool {
	b.rows = append(b.rows, r)
	return b.maxRows > 0 && len(b.rows) >= b.maxRows
}

// Due reports whether pending rows have waited a full interval.
func (b *batcher) Due() bool {
	return len(b.rows) > 0 && b.now().Sub(b.lastFlush) >= b.interval
}

// Take returns the pending rows split by table and resets the batch.
func (b *batcher) Take() ([]FrameRow, []CommandRow) {
	var frames []FrameRow
	var commands []CommandRow
	for _, r := range b.rows {
		switch {
		case r.frame != nil:
			frames = append(frames, *r.frame)
		case r.command != nil:
			commands = append(commands, *r.command)
		}
	}
	b.rows = b.rows[:0]
	b.lastFlush = b.now()
	return frames, commands
}

// Pending returns the number of rows waiting.
func (b *batcher) Pending() int {
	return len(b.rows)
}
