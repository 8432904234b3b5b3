package ingest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmigrate/model"
)

func TestAssembler_BatchBound(t *testing.T) {
	for _, tc := range []struct {
		rows, size, batches int
	}{
		{rows: 0, size: 4, batches: 0},
		{rows: 3, size: 4, batches: 1},
		{rows: 4, size: 4, batches: 1},
		{rows: 6, size: 4, batches: 2},
		{rows: 12, size: 4, batches: 3},
		{rows: 1, size: 1, batches: 1},
	} {
		t.Run(fmt.Sprintf("%d_rows_size_%d", tc.rows, tc.size), func(t *testing.T) {
			asm := NewAssembler(tc.size)

			var batches [][]model.Datapoint
			for i := 0; i < tc.rows; i++ {
				if b := asm.Add(model.Datapoint{ID: fmt.Sprintf("%d", i)}); b != nil {
					batches = append(batches, b)
				}
			}
			if b := asm.Flush(); b != nil {
				batches = append(batches, b)
			}

			require.Len(t, batches, tc.batches)
			assert.Equal(t, tc.rows, asm.Total())

			// Concatenation reproduces the input rows in order, every
			// batch within the bound.
			n := 0
			for _, b := range batches {
				assert.LessOrEqual(t, len(b), tc.size)
				assert.NotEmpty(t, b)
				for _, dp := range b {
					assert.Equal(t, fmt.Sprintf("%d", n), dp.ID)
					n++
				}
			}
			assert.Equal(t, tc.rows, n)
		})
	}
}

func TestAssembler_FlushResets(t *testing.T) {
	asm := NewAssembler(4)
	asm.Add(model.Datapoint{ID: "a"})

	b := asm.Flush()
	require.Len(t, b, 1)
	assert.Nil(t, asm.Flush())
}

func TestAssembler_DefaultSize(t *testing.T) {
	asm := NewAssembler(0)
	for i := 0; i < DefaultBatchSize-1; i++ {
		assert.Nil(t, asm.Add(model.Datapoint{}))
	}
	assert.NotNil(t, asm.Add(model.Datapoint{}))
}
