// Package diag defines the diagnostic values accumulated by the compiler
// stages. Diagnostics are data, never control flow: stages collect them
// and keep going wherever the input allows.
package diag

import (
	"fmt"
	"strings"
)

// Loc is a position in the source text.
type Loc struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (l Loc) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// IsZero reports whether the location is unknown.
func (l Loc) IsZero() bool {
	return l.Line == 0 && l.Column == 0
}

type Severity uint8

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "invalid"
	}
}

// Diagnostic is a single issue found during compilation.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Msg      string   `json:"msg"`
	Loc      Loc      `json:"loc"`
}

func (d Diagnostic) String() string {
	if d.Loc.IsZero() {
		return fmt.Sprintf("%v: %s", d.Severity, d.Msg)
	}
	return fmt.Sprintf("%v: %v: %s", d.Loc, d.Severity, d.Msg)
}

// Errorf creates an error-severity diagnostic.
func Errorf(loc Loc, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Error, Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// Warnf creates a warning-severity diagnostic.
func Warnf(loc Loc, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Warning, Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// List accumulates diagnostics across stages.
type List []Diagnostic

func (l *List) Add(ds ...Diagnostic) {
	*l = append(*l, ds...)
}

// HasErrors reports whether any diagnostic is error-severity.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func (l List) Errors() List {
	var ret List
	for _, d := range l {
		if d.Severity == Error {
			ret = append(ret, d)
		}
	}
	return ret
}

func (l List) String() string {
	sb := new(strings.Builder)
	for i, d := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.String())
	}
	return sb.String()
}
