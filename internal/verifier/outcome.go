package verifier

// OutcomeKind tags the result of one threshold comparison.
type OutcomeKind int

const (
	NotBreached OutcomeKind = iota
	Breached
	VerifierError
)

func (k OutcomeKind) String() string {
	switch k {
	case Breached:
		return "breached"
	case VerifierError:
		return "verifier_error"
	default:
		return "not_breached"
	}
}

// Outcome is the tagged comparison result. Err is set only for VerifierError.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func failed(err error) Outcome {
	return Outcome{Kind: VerifierError, Err: err}
}
