// Package driver ties the solver together: it builds the probe suite,
// derives the top-level shift property mask from the oracle's
// responses, maps a challenge's declared operator set onto an
// arena.OpSet plus synthesis mode, and runs the generate/verify loop
// to a win or a time-out. Grounded on protocol.cc's Protocol::challenge
// (fixed probe vector, one eval before generation) and spec.md §4.6.
package driver

import (
	"context"
	"fmt"
	"time"

	"bvsolve/internal/analyze"
	"bvsolve/internal/arena"
	"bvsolve/internal/bvexpr"
	"bvsolve/internal/logging"
	"bvsolve/internal/oracle"
	"bvsolve/internal/solverr"
	"bvsolve/internal/verify"
)

// fixedProbes is protocol.cc's literal 12-value probe vector (the 13th
// listed literal there, 0xaa5555aa5555aaaa, is included too) — kept as
// a documented fixed prefix so the probe suite stays reproducible
// against the original solver's behavior on identity/shift-style
// targets.
var fixedProbes = []uint64{
	0xB445FBB8CDDCF9F8, 0xEFE7EA693DD952DE, 0x6D326AEEB275CF14, 0xBB5F96D91F43B9F3,
	0xF246BDD3CFDEE59E, 0x28E6839E4B1EEBC1, 0x9273A5C811B2217B, 0xA841129BBAB18B3E,
	0x0, 0x1, 0xaa5555aa5555aaaa, 0xff00000000000000, 0x00ff000000000000,
}

// ProbeSuite builds the full probe vector: the fixed prefix above
// followed by a deterministic spread of sparse bit patterns,
// byte-aligned masks and walking-bit values, totalling at least 50
// inputs as spec §4.6 calls for.
func ProbeSuite() []uint64 {
	probes := make([]uint64, 0, 64)
	probes = append(probes, fixedProbes...)

	// Walking single bits, low half and high half.
	for i := 0; i < 16; i++ {
		probes = append(probes, uint64(1)<<uint(i))
		probes = append(probes, uint64(1)<<uint(63-i))
	}
	// Byte-aligned masks: each byte lane set in isolation.
	for i := 0; i < 8; i++ {
		probes = append(probes, uint64(0xff)<<uint(8*i))
	}
	// Sparse alternating patterns at a few phases.
	for _, base := range []uint64{0x5555555555555555, 0x3333333333333333, 0x0f0f0f0f0f0f0f0f} {
		probes = append(probes, base)
		probes = append(probes, ^base)
	}
	return probes
}

// PropertyMask derives the top-level shift restriction mask from a
// probe suite's outputs, per spec §4.6.
func PropertyMask(outputs []uint64) arena.PropertyMask {
	var m arena.PropertyMask
	for _, o := range outputs {
		if o&1 != 0 {
			m |= arena.NoTopShl1
		}
		if o&(1<<63) != 0 {
			m |= arena.NoTopShr1
		}
		if o&0xf000000000000000 != 0 {
			m |= arena.NoTopShr4
		}
		if o&0xffff000000000000 != 0 {
			m |= arena.NoTopShr16
		}
	}
	return m
}

// Mode selects which Arena wrapper a challenge's operator set calls
// for.
type Mode int

const (
	ModeFree Mode = iota
	ModeTfold
	ModeBonus
)

var opNames = map[string]bvexpr.Op{
	"not": bvexpr.Not, "shl1": bvexpr.Shl1, "shr1": bvexpr.Shr1,
	"shr4": bvexpr.Shr4, "shr16": bvexpr.Shr16,
	"and": bvexpr.And, "or": bvexpr.Or, "xor": bvexpr.Xor, "plus": bvexpr.Plus,
	"if0": bvexpr.If0, "fold": bvexpr.Fold,
}

// ParseOperators translates a challenge's declared operator strings
// into an allowed OpSet and a synthesis Mode. "tfold" and "bonus" are
// pseudo-operators that select a mode rather than naming a grammar op.
func ParseOperators(names []string) (arena.OpSet, Mode) {
	set := arena.OpSet(0)
	mode := ModeFree
	for _, name := range names {
		switch name {
		case "tfold":
			mode = ModeTfold
			set = set.Add(bvexpr.Fold)
		case "bonus":
			mode = ModeBonus
			set = set.Add(bvexpr.If0).Add(bvexpr.And).Add(bvexpr.Fold)
		default:
			if op, ok := opNames[name]; ok {
				set = set.Add(op)
			}
		}
	}
	return set, mode
}

// Config holds the solver's tunables, populated from environment
// variables by the CLI layer rather than a config framework (none of the example repos
// this module draws on pull one in either).
type Config struct {
	BaseURL   string
	AuthToken string
	Budget    time.Duration
}

// DefaultConfig returns the contest's published endpoint and the
// spec's default 320-second per-challenge time budget.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://icfpc2013.cloudapp.net",
		Budget:  320 * time.Second,
	}
}

// Result summarizes the outcome of one Solve call.
type Result struct {
	Program  string
	Win      bool
	TimedOut bool
	Probes   int
	Guesses  int
}

// Solve runs the probe → verify → generate loop for one challenge
// until it wins, exhausts its time budget, or hits a fatal oracle
// error.
func Solve(ctx context.Context, client *oracle.Client, log *logging.Logger, id string, size int, operatorNames []string, cfg Config) (Result, error) {
	allowed, mode := ParseOperators(operatorNames)

	probes := ProbeSuite()
	outputs, err := client.Eval(ctx, id, probes)
	if err != nil {
		return Result{}, err
	}
	log.Infof("driver", "challenge %s: probed %d inputs, mode=%v", id, len(probes), mode)

	mask := PropertyMask(outputs)

	v := verify.New(cfg.Budget)
	v.Start()
	for i, p := range probes {
		v.Add(p, outputs[i])
	}
	if len(probes) >= 2 {
		log.Infof("driver", "shift profile: %s", analyze.SDist(probes[0], outputs[0]))
	}

	result := Result{Probes: len(probes)}

	for {
		submit, err := runPass(ctx, client, log, id, size, allowed, mask, mode, v, &result)
		if err != nil {
			return result, err
		}
		if submit != "" {
			result.Program = submit
			result.Win = true
			return result, nil
		}
		if v.Last() == verify.TimedOut {
			result.TimedOut = true
			return result, nil
		}
		// Either a counter-example was ingested or the pass exhausted
		// its size range without a match; loop to re-run generation
		// with the current verifier table until a win or the time-out.
	}
}

// runPass drives one Arena.Generate call to completion, submitting a
// guess the first time the verifier reports a full match. It returns
// the winning program's wire text, or "" if generation exhausted the
// size range or timed out without a full match, or if the guess was
// rejected with a counter-example (which is then added to v).
func runPass(ctx context.Context, client *oracle.Client, log *logging.Logger, id string, size int, allowed arena.OpSet, mask arena.PropertyMask, mode Mode, v *verify.Verifier, result *Result) (string, error) {
	var winner string

	accept := func(root *bvexpr.Node, candSize int) bool {
		if !v.Action(root, candSize) {
			return false
		}
		if v.Last() == verify.SubmitGuess {
			winner = root.Program()
			return false
		}
		return true
	}

	switch mode {
	case ModeTfold:
		a := arena.NewTfold()
		a.SetAllowedOps(allowed)
		a.SetTopLevelProperties(mask)
		a.SetAccept(accept)
		a.Generate(size)
	case ModeBonus:
		a := arena.NewBonus()
		a.SetAllowedOps(allowed)
		a.SetTopLevelProperties(mask)
		a.SetAccept(accept)
		a.Generate(size)
	default:
		a := arena.New()
		a.SetAllowedOps(allowed)
		a.SetTopLevelProperties(mask)
		a.SetAccept(accept)
		a.Generate(size - 1)
	}

	if winner == "" {
		return "", nil
	}

	result.Guesses++
	outcome, err := client.Guess(ctx, id, winner)
	if err != nil {
		return "", err
	}
	if outcome.Win {
		return winner, nil
	}
	if outcome.HasCounterExample {
		v.Add(outcome.CounterExampleIn, outcome.CounterExampleOut)
		log.Infof("driver", "challenge %s: guess rejected, counter-example ingested (total pairs=%d)", id, len(v.Pairs()))
		return "", nil
	}
	return "", solverr.NewInvariant(fmt.Sprintf("guess for %s neither won nor returned a counter-example", id))
}
