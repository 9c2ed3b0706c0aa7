// Package recovery decides how parsing faults are handled: abort, drop the
// offending item, or continue best-effort. The parser, xref resolver and
// page builder consult the configured strategy at every fault site, which
// keeps the fail-soft policy in one place.
package recovery

type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

// Location pins a fault to a byte offset and the component that hit it.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

type Context interface{ Done() <-chan struct{} }
