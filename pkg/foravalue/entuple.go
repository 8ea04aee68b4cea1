package foravalue

import (
	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

// ErrNotHomogenous is returned by Entuple/Detuple when the array isn't
// currently in one of the two homogeneous storage modes they require.
var ErrNotHomogenous = errors.New(errors.CodeRejected, "foravalue: entuple/detuple requires a homogeneous array")

// Entuple relabels a homogeneous POD array's element judgment from v to
// (t, v) in place: downstream readers that expect a uniform tuple shape
// see every element tagged with t without the array copying its payload.
// The tag t carries no bytes of its own (it is a discriminator, not a
// value), so only the judgment bookkeeping changes; Detuple is its exact
// inverse.
func (a *ForaValueArray) Entuple(t judgment.Judgment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != ModeStrided && a.mode != ModeOffsetTable {
		return ErrNotHomogenous
	}
	if a.entupled {
		return errors.New(errors.CodeRejected, "foravalue: array is already entupled")
	}
	a.entupleTag = t
	a.entupledFrom = a.sharedJudgment
	a.entupled = true
	a.sharedJudgment = judgment.Type(judgment.TypeTuple)
	return nil
}

// Detuple is Entuple's inverse: it restores the pre-entuple element
// judgment.
func (a *ForaValueArray) Detuple() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.entupled {
		return errors.New(errors.CodeRejected, "foravalue: array was not entupled")
	}
	a.sharedJudgment = a.entupledFrom
	a.entupled = false
	a.entupleTag = judgment.Judgment{}
	a.entupledFrom = judgment.Judgment{}
	return nil
}

// IsEntupled reports whether Entuple has been applied without a
// matching Detuple.
func (a *ForaValueArray) IsEntupled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entupled
}
