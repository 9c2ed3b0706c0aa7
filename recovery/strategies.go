package recovery

import "fmt"

// StrictStrategy fails on the first fault. Useful in tests and when a
// damaged input should be rejected rather than repaired.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy continues best-effort and records every fault it saw.
// Faults in optional structures are skipped, everything else is warned
// about and parsing proceeds with whatever could be read.
type LenientStrategy struct {
	Faults []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.Faults = append(s.Faults, fmt.Errorf("%s: offset %d: %w", location.Component, location.ByteOffset, err))
	return ActionWarn
}
