package sig_interpreter

import (
	"fmt"
	"sync"
)

// Diagnostic is one advisory message raised while interpreting a span.
type Diagnostic struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return d.Rule + ": " + d.Message
}

// Diagnostics collects advisory warnings produced by the interpreters. A nil
// *Diagnostics is valid and discards everything, so callers that do not
// care can pass nil.
type Diagnostics struct {
	mu      sync.Mutex
	entries []Diagnostic
}

// NewDiagnostics returns an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Warnf records a warning attributed to rule.
func (d *Diagnostics) Warnf(rule, format string, args ...interface{}) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.entries = append(d.entries, Diagnostic{Rule: rule, Message: fmt.Sprintf(format, args...)})
	d.mu.Unlock()
}

// Entries returns a copy of the collected warnings in insertion order.
func (d *Diagnostics) Entries() []Diagnostic {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports the number of warnings collected.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Merge appends every entry of other.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if d == nil || other == nil || d == other {
		return
	}
	for _, e := range other.Entries() {
		d.mu.Lock()
		d.entries = append(d.entries, e)
		d.mu.Unlock()
	}
}

// Reset drops all collected entries.
func (d *Diagnostics) Reset() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.entries = nil
	d.mu.Unlock()
}
