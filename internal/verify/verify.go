// Package verify holds the input/output table the Arena's candidates
// are checked against, and turns the result into an accept/reject
// decision with a counter-example on mismatch.
package verify

import (
	"time"

	"bvsolve/internal/bvexpr"
)

// Outcome is what a Verifier's Action wants the driver to do next.
type Outcome int

const (
	// Continue means: candidate rejected (mismatched some pair), keep
	// enumerating.
	Continue Outcome = iota
	// SubmitGuess means: candidate matched every known pair, submit it
	// to the oracle's guess endpoint.
	SubmitGuess
	// TimedOut means: the time budget elapsed; stop enumerating.
	TimedOut
)

// Pair is one (input, expectedOutput) sample.
type Pair struct {
	Input, Output uint64
}

// Verifier holds an append-only table of known (input, output) pairs
// and a wall-clock budget. It is not safe for concurrent use — the
// enumerator driving it is single-threaded by design (spec §5).
type Verifier struct {
	pairs     []Pair
	started   time.Time
	budget    time.Duration
	checked   int
	checkMask int // check elapsed time whenever checked&checkMask == 0, i.e. every checkMask+1 candidates
	last      Outcome
}

// New returns a Verifier with the given time budget. A zero budget
// disables the timeout check.
func New(budget time.Duration) *Verifier {
	return &Verifier{budget: budget, checkMask: 1<<23 - 1}
}

// Add appends a known (input, output) pair, e.g. from a probe batch
// or a guess-mismatch counter-example.
func (v *Verifier) Add(input, output uint64) {
	v.pairs = append(v.pairs, Pair{input, output})
}

// AddAll appends every pair in pairs.
func (v *Verifier) AddAll(pairs []Pair) {
	v.pairs = append(v.pairs, pairs...)
}

// Pairs returns the current table (read-only use expected).
func (v *Verifier) Pairs() []Pair { return v.pairs }

// Start resets the time budget's clock; call once per challenge.
func (v *Verifier) Start() { v.started = time.Now() }

// Elapsed returns time since Start.
func (v *Verifier) Elapsed() time.Duration { return time.Since(v.started) }

// timedOut checks the wall clock every 2^23 candidates (spec §5),
// not on every call, since time.Now() is not free in a hot loop.
func (v *Verifier) timedOut() bool {
	if v.budget <= 0 {
		return false
	}
	v.checked++
	if v.checked&v.checkMask != 0 {
		return false
	}
	return time.Since(v.started) >= v.budget
}

// Action is an arena.AcceptFunc: it evaluates root against every
// known pair and reports Continue on the first mismatch, SubmitGuess
// if root matches all of them, or TimedOut if the budget has elapsed.
// The keepGoing bool mirrors arena.AcceptFunc's contract directly: the
// caller inspects the Outcome via Last() to tell SubmitGuess apart
// from TimedOut (both stop enumeration).
func (v *Verifier) Action(root *bvexpr.Node, size int) bool {
	if v.timedOut() {
		v.last = TimedOut
		return false
	}
	for _, p := range v.pairs {
		if root.Run(p.Input) != p.Output {
			v.last = Continue
			return true
		}
	}
	v.last = SubmitGuess
	return false
}

// Last reports the outcome of the most recent Action call (a later
// Continue replaces an earlier SubmitGuess or TimedOut), or Continue
// if Action has not been called.
func (v *Verifier) Last() Outcome { return v.last }
