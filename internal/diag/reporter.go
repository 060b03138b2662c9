package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Reporter renders diagnostics for a human.
type Reporter struct {
	w     io.Writer
	quiet bool

	errColor  *color.Color
	warnColor *color.Color
	infoColor *color.Color
	subjColor *color.Color
}

// NewReporter constructs a reporter writing to w. When colorize is false all
// styling is suppressed; when quiet is true informational diagnostics are
// dropped.
func NewReporter(w io.Writer, colorize, quiet bool) *Reporter {
	r := &Reporter{
		w:         w,
		quiet:     quiet,
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow),
		infoColor: color.New(color.FgCyan),
		subjColor: color.New(color.Bold),
	}
	if !colorize {
		r.errColor.DisableColor()
		r.warnColor.DisableColor()
		r.infoColor.DisableColor()
		r.subjColor.DisableColor()
	}
	return r
}

// Report renders every diagnostic in the bag in sorted order.
func (r *Reporter) Report(b *Bag) {
	if r == nil || b == nil {
		return
	}
	b.Sort()
	for _, d := range b.Items() {
		if r.quiet && d.Severity == SevInfo {
			continue
		}
		var label string
		switch d.Severity {
		case SevError:
			label = r.errColor.Sprint("error")
		case SevWarning:
			label = r.warnColor.Sprint("warning")
		default:
			label = r.infoColor.Sprint("info")
		}
		subject := ""
		if d.Subject != "" {
			subject = r.subjColor.Sprint(d.Subject) + ": "
		}
		fmt.Fprintf(r.w, "%s[%s]: %s%s\n", label, d.Code, subject, d.Message)
	}
}
