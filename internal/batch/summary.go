package batch

// Summary counts outcomes by status and keeps the failure diagnostics in
// input order.
type Summary struct {
	Fixed    int
	Missing  int
	Errors   int
	Skipped  int
	Failures []Outcome
}

// Summarize reduces a list of outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Add(o)
	}
	return s
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	switch o.Status {
	case StatusSuccess:
		s.Fixed++
	case StatusMissing:
		s.Missing++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Errors++
		s.Failures = append(s.Failures, o)
	}
}

// Merge folds other into s.
func (s *Summary) Merge(other Summary) {
	s.Fixed += other.Fixed
	s.Missing += other.Missing
	s.Errors += other.Errors
	s.Skipped += other.Skipped
	s.Failures = append(s.Failures, other.Failures...)
}

// Total is the number of outcomes counted.
func (s Summary) Total() int {
	return s.Fixed + s.Missing + s.Errors + s.Skipped
}
