package saga

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordOrder(t *testing.T) {
	tr := NewTrace()
	tr.Record(TraceEntry{Method: "POST", Path: "/bizes", Status: 201})
	tr.Record(TraceEntry{Method: "GET", Path: "/bizes", Status: 200})

	require.Equal(t, 2, tr.Len())
	assert.Equal(t, []string{"/bizes", "/bizes"}, tr.Paths())
	assert.Equal(t, "POST", tr.Entries()[0].Method)
	assert.Equal(t, "GET", tr.Entries()[1].Method)
}

func TestTraceEntriesReturnsCopy(t *testing.T) {
	tr := NewTrace()
	tr.Record(TraceEntry{Path: "/a"})

	entries := tr.Entries()
	entries[0].Path = "/mutated"
	assert.Equal(t, "/a", tr.Entries()[0].Path)
}

// Concurrent traces never intermix: each goroutine records into its own
// trace and sees exactly its own calls.
func TestTraceIsolationUnderConcurrency(t *testing.T) {
	const traces = 8
	const perTrace = 50

	var wg sync.WaitGroup
	results := make([]*Trace, traces)
	for i := 0; i < traces; i++ {
		tr := NewTrace()
		results[i] = tr
		wg.Add(1)
		go func(id int, tr *Trace) {
			defer wg.Done()
			for j := 0; j < perTrace; j++ {
				tr.Record(TraceEntry{Path: fmt.Sprintf("/trace-%d/call-%d", id, j)})
			}
		}(i, tr)
	}
	wg.Wait()

	for i, tr := range results {
		require.Equal(t, perTrace, tr.Len())
		for _, p := range tr.Paths() {
			assert.True(t, strings.HasPrefix(p, fmt.Sprintf("/trace-%d/", i)),
				"trace %d contains foreign path %s", i, p)
		}
	}
}

func TestTruncateBody(t *testing.T) {
	small := []byte("hello")
	assert.Equal(t, "hello", TruncateBody(small))

	exact := bytes.Repeat([]byte("x"), maxTraceBodyBytes)
	assert.Equal(t, string(exact), TruncateBody(exact))

	big := bytes.Repeat([]byte("y"), maxTraceBodyBytes+100)
	out := TruncateBody(big)
	assert.True(t, strings.HasSuffix(out, fmt.Sprintf("[truncated, %d bytes total]", len(big))))
	assert.True(t, strings.HasPrefix(out, string(big[:maxTraceBodyBytes])))
}
