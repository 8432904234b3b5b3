package ingest

import "github.com/hupe1980/vecmigrate/model"

// DefaultBatchSize bounds upsert batches when no size is configured.
const DefaultBatchSize = 100

// Assembler accumulates datapoints into bounded, order-preserving
// batches. It is owned by a single pipeline iteration and is not safe
// for concurrent use.
type Assembler struct {
	size  int
	buf   []model.Datapoint
	total int
}

// NewAssembler creates an assembler with the given batch size; sizes
// below 1 fall back to DefaultBatchSize.
func NewAssembler(size int) *Assembler {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Assembler{
		size: size,
		buf:  make([]model.Datapoint, 0, size),
	}
}

// Add appends a datapoint and returns a full batch when the bound is
// reached, nil otherwise. Returned batches are detached from the
// internal buffer.
func (a *Assembler) Add(dp model.Datapoint) []model.Datapoint {
	a.buf = append(a.buf, dp)
	a.total++
	if len(a.buf) < a.size {
		return nil
	}
	return a.take()
}

// Flush returns the buffered partial batch, or nil when empty. Called at
// the end of each namespace so no rows are silently dropped.
func (a *Assembler) Flush() []model.Datapoint {
	if len(a.buf) == 0 {
		return nil
	}
	return a.take()
}

// Total returns the number of datapoints added so far.
func (a *Assembler) Total() int { return a.total }

func (a *Assembler) take() []model.Datapoint {
	batch := a.buf
	a.buf = make([]model.Datapoint, 0, a.size)
	return batch
}
