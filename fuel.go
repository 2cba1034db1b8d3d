package ftl

// fuelGauge counts executed statements against an optional limit. An
// Environment runs on a single goroutine, so the counter is plain.
type fuelGauge struct {
	limit uint64 // zero disables the limit
	used  uint64
}

// burn records n executed statements and fails once the limit is exceeded.
func (g *fuelGauge) burn(n uint64) error {
	g.used += n
	if g.limit > 0 && g.used > g.limit {
		return NewError(ErrAborted, "out of fuel").
			WithTip("the render executed more statements than allowed; raise the limit with Configuration.SetFuel")
	}
	return nil
}
