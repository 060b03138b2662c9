package diag

import (
	"fmt"
	"sort"
)

// Bag accumulates diagnostics up to a fixed limit.
type Bag struct {
	items []Diagnostic
	max   uint16
}

// NewBag constructs a bag holding at most max diagnostics.
func NewBag(max int) *Bag {
	return &Bag{
		items: make([]Diagnostic, 0, max),
		max:   uint16(max),
	}
}

// Add appends a diagnostic, honoring the limit.
// Returns false when the diagnostic was dropped.
func (b *Bag) Add(d Diagnostic) bool {
	if b == nil {
		return false
	}
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Infof adds a formatted informational diagnostic.
func (b *Bag) Infof(code Code, subject, format string, args ...any) {
	b.Add(Diagnostic{Severity: SevInfo, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// Warnf adds a formatted warning diagnostic.
func (b *Bag) Warnf(code Code, subject, format string, args ...any) {
	b.Add(Diagnostic{Severity: SevWarning, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// Errorf adds a formatted error diagnostic.
func (b *Bag) Errorf(code Code, subject, format string, args ...any) {
	b.Add(Diagnostic{Severity: SevError, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any diagnostic has Severity >= Error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

// Len returns the number of stored diagnostics.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Items returns a read-only view of the stored diagnostics.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends diagnostics from another bag, growing the limit as needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	newTotal := len(b.items) + len(other.items)
	if newTotal > int(b.max) {
		b.max = uint16(newTotal)
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by subject, code, then severity (descending) for
// deterministic output.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Subject != dj.Subject {
			return di.Subject < dj.Subject
		}
		if di.Code != dj.Code {
			return di.Code < dj.Code
		}
		return di.Severity > dj.Severity
	})
}
