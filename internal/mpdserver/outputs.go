package mpdserver

import (
	"errors"
	"maps"
	"sync"
)

var errNoSuchOutput = errors.New("no such audio output")

// Output is one audio output served by the daemon
type Output struct {
	Name       string
	Plugin     string
	Enabled    bool
	Attributes map[string]string
}

// outputTable holds the outputs; ids are slice positions
type outputTable struct {
	mu      sync.RWMutex
	outputs []Output
}

func newOutputTable(outputs []Output) *outputTable {
	t := &outputTable{outputs: make([]Output, len(outputs))}
	for i, o := range outputs {
		o.Attributes = maps.Clone(o.Attributes)
		t.outputs[i] = o
	}
	return t
}

// replace swaps in a new set of outputs
func (t *outputTable) replace(outputs []Output) {
	fresh := newOutputTable(outputs)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs = fresh.outputs
}

func (t *outputTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.outputs)
}

// snapshot returns a deep copy of the table
func (t *outputTable) snapshot() []Output {
	t.mu.RLock()
	defer t.mu.RUnlock()

	outputs := make([]Output, len(t.outputs))
	for i, o := range t.outputs {
		o.Attributes = maps.Clone(o.Attributes)
		outputs[i] = o
	}
	return outputs
}

// update sets the enabled flag of output id to next(current) and reports
// whether it changed.
func (t *outputTable) update(id uint64, next func(enabled bool) bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id >= uint64(len(t.outputs)) {
		return false, errNoSuchOutput
	}
	o := &t.outputs[id]
	enabled := next(o.Enabled)
	changed := enabled != o.Enabled
	o.Enabled = enabled
	return changed, nil
}
