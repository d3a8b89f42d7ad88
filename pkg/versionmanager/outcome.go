package versionmanager

import "github.com/cuemby/clusterver/pkg/verid"

// outcomeKind distinguishes the three ways one reconciliation attempt
// can end: it published a new version, it deferred silently pending a
// later observation, or it hit a transient condition warranting a
// backoff-and-retry.
type outcomeKind int

const (
	outcomeAdvance outcomeKind = iota
	outcomeDefer
	outcomeTransient
)

// outcome is the sum-typed result of one advanceOnce attempt, used in
// place of exceptions: only outcomeTransient carries a reason and
// triggers the reconciler's backoff sleep.
type outcome struct {
	kind    outcomeKind
	version verid.Version
	reason  string
}

func advanced(v verid.Version) outcome {
	return outcome{kind: outcomeAdvance, version: v}
}

func deferred() outcome {
	return outcome{kind: outcomeDefer}
}

func transient(reason string) outcome {
	return outcome{kind: outcomeTransient, reason: reason}
}

func (o outcome) String() string {
	switch o.kind {
	case outcomeAdvance:
		return "advance"
	case outcomeDefer:
		return "defer"
	case outcomeTransient:
		return "transient: " + o.reason
	default:
		return "unknown"
	}
}
