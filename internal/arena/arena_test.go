package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bvsolve/internal/bvexpr"
)

// collect drains a Generate call and returns every accepted candidate.
func collect(gen func(accept func(*bvexpr.Node, int) bool)) []*bvexpr.Node {
	var out []*bvexpr.Node
	gen(func(root *bvexpr.Node, size int) bool {
		clone := cloneTree(root)
		out = append(out, clone)
		return true
	})
	return out
}

// cloneTree deep-copies a candidate out of the Arena's pool, since the
// pool slot backing root is reused on the very next emit.
func cloneTree(n *bvexpr.Node) *bvexpr.Node {
	if n == nil {
		return nil
	}
	c := &bvexpr.Node{Op: n.Op, Var: n.Var, Val: n.Val, Const: n.Const}
	for i, op := range n.Operands {
		c.Operands[i] = cloneTree(op)
	}
	return c
}

// usesOnly reports whether every op in the tree is C0/C1/VAR or a
// member of allowed.
func usesOnly(n *bvexpr.Node, allowed OpSet) bool {
	if n == nil {
		return true
	}
	switch n.Op {
	case bvexpr.C0, bvexpr.C1, bvexpr.Var:
		// always available
	default:
		if !allowed.Has(n.Op) {
			return false
		}
	}
	ar := n.Op.Arity()
	if n.Op == bvexpr.Fold {
		ar = 3
	}
	for i := 0; i < ar; i++ {
		if !usesOnly(n.Operands[i], allowed) {
			return false
		}
	}
	return true
}

// foldCount returns the number of FOLD nodes in the tree.
func foldCount(n *bvexpr.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Op == bvexpr.Fold {
		count++
	}
	ar := n.Op.Arity()
	if n.Op == bvexpr.Fold {
		ar = 3
	}
	for i := 0; i < ar; i++ {
		count += foldCount(n.Operands[i])
	}
	return count
}

// higherVarsScopedToFold walks the tree and reports whether every
// VAR(i>0) occurs only inside a FOLD's body operand (P1's scoping
// rule).
func higherVarsScopedToFold(n *bvexpr.Node, insideFoldBody bool) bool {
	if n == nil {
		return true
	}
	if n.Op == bvexpr.Var && n.Var > 0 && !insideFoldBody {
		return false
	}
	if n.Op == bvexpr.Fold {
		if !higherVarsScopedToFold(n.Operands[0], insideFoldBody) {
			return false
		}
		if !higherVarsScopedToFold(n.Operands[1], insideFoldBody) {
			return false
		}
		return higherVarsScopedToFold(n.Operands[2], true)
	}
	ar := n.Op.Arity()
	for i := 0; i < ar; i++ {
		if !higherVarsScopedToFold(n.Operands[i], insideFoldBody) {
			return false
		}
	}
	return true
}

func nodeCount(n *bvexpr.Node) int {
	if n == nil {
		return 0
	}
	count := 1
	ar := n.Op.Arity()
	if n.Op == bvexpr.Fold {
		ar = 3
	}
	for i := 0; i < ar; i++ {
		count += nodeCount(n.Operands[i])
	}
	return count
}

// TestP1TokenCountOperatorSetAndScoping drives a mixed-operator
// generation pass and checks every emitted candidate against P1: node
// count within the requested body size (which must be reached at least
// once), operator membership, at most one FOLD, and VAR(i>0) scoped to
// a FOLD body.
func TestP1TokenCountOperatorSetAndScoping(t *testing.T) {
	allowed := OpSet(0).Add(bvexpr.And).Add(bvexpr.Not).Add(bvexpr.Fold)

	a := New()
	a.SetAllowedOps(allowed)
	const bodySize = 5
	candidates := collect(func(accept func(*bvexpr.Node, int) bool) {
		a.SetAccept(accept)
		a.Generate(bodySize)
	})
	require.NotEmpty(t, candidates)

	sawTargetSize := false
	for _, c := range candidates {
		n := nodeCount(c)
		assert.LessOrEqual(t, n, bodySize)
		if n == bodySize {
			sawTargetSize = true
		}
		assert.True(t, usesOnly(c, allowed), "candidate uses a disallowed op: %s", c.Code())
		assert.LessOrEqual(t, foldCount(c), 1, "more than one FOLD in %s", c.Code())
		assert.True(t, higherVarsScopedToFold(c, false), "VAR(i>0) escaped its FOLD body in %s", c.Code())
	}
	assert.True(t, sawTargetSize, "Generate never reached the requested body size")
}

// TestP4ArenaIntegrityAfterFullRun checks that arena_ptr and
// valents_ptr are restored to zero once Generate returns having
// exhausted its size range.
func TestP4ArenaIntegrityAfterFullRun(t *testing.T) {
	a := New()
	a.SetAllowedOps(OpSet(0).Add(bvexpr.Not).Add(bvexpr.And))
	a.SetAccept(func(root *bvexpr.Node, size int) bool { return true })
	a.Generate(5)

	assert.Equal(t, 0, a.arenaPtr)
	assert.Equal(t, 0, a.valentsPtr)
}

// TestP4ArenaIntegrityAfterEarlyStop checks the same invariant when
// the accept callback asks the Arena to stop partway through — the
// unwind must still restore the frame exactly, mirroring how a
// verifier's SubmitGuess/TimedOut outcome unwinds the real search.
func TestP4ArenaIntegrityAfterEarlyStop(t *testing.T) {
	a := New()
	a.SetAllowedOps(OpSet(0).Add(bvexpr.Not).Add(bvexpr.And).Add(bvexpr.Or))
	seen := 0
	a.SetAccept(func(root *bvexpr.Node, size int) bool {
		seen++
		return seen < 7
	})
	a.Generate(6)

	assert.Equal(t, 0, a.arenaPtr)
	assert.Equal(t, 0, a.valentsPtr)
	assert.True(t, a.done)
}

// TestP6PruningSoundnessNotNot covers scenario 4: with only NOT
// allowed, the enumerator must never emit NOT(NOT(_)) (optimize on),
// yet the extensionally equal reduced form must still appear in the
// same run (soundness: rejection never costs completeness).
func TestP6PruningSoundnessNotNot(t *testing.T) {
	allowed := OpSet(0).Add(bvexpr.Not)

	a := New()
	a.SetAllowedOps(allowed)
	candidates := collect(func(accept func(*bvexpr.Node, int) bool) {
		a.SetAccept(accept)
		a.Generate(4) // reaches body node counts 1..4
	})

	doubleNot := 0
	sawVar0 := false
	for _, c := range candidates {
		if c.Op == bvexpr.Not && c.Operands[0].Op == bvexpr.Not {
			doubleNot++
		}
		if c.Op == bvexpr.Var && c.Var == 0 {
			sawVar0 = true
		}
	}
	assert.Equal(t, 0, doubleNot, "NOT(NOT(_)) should be pruned under optimize")
	assert.True(t, sawVar0, "the reduced extensional equivalent (x0) must still be reachable")
}

// TestP6PruningSoundnessOffFindsDoubleNot confirms the pruning rule is
// actually doing something: with optimize off, NOT(NOT(x0)) reappears.
func TestP6PruningSoundnessOffFindsDoubleNot(t *testing.T) {
	allowed := OpSet(0).Add(bvexpr.Not)

	a := New()
	a.SetAllowedOps(allowed)
	a.SetOptimize(false)
	candidates := collect(func(accept func(*bvexpr.Node, int) bool) {
		a.SetAccept(accept)
		a.Generate(4)
	})

	doubleNot := 0
	for _, c := range candidates {
		if c.Op == bvexpr.Not && c.Operands[0].Op == bvexpr.Not {
			doubleNot++
		}
	}
	assert.Greater(t, doubleNot, 0, "unpruned run should still construct NOT(NOT(_))")
}

// TestScenario1IdentitySizeThree covers spec scenario 1: with no
// gated operators allowed, size-3 enumeration (body budget 2) must
// produce a candidate extensionally equal to the identity function.
func TestScenario1IdentitySizeThree(t *testing.T) {
	a := New()
	a.SetAllowedOps(OpSet(0))
	candidates := collect(func(accept func(*bvexpr.Node, int) bool) {
		a.SetAccept(accept)
		a.Generate(2) // driver.Solve calls Generate(size-1)
	})

	probes := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x1122334455667788}
	found := false
	for _, c := range candidates {
		match := true
		for _, p := range probes {
			if c.Run(p) != p {
				match = false
				break
			}
		}
		if match {
			found = true
			break
		}
	}
	assert.True(t, found, "no candidate extensionally equal to identity was emitted")
}

// TestScenario2Shift4 covers spec scenario 2: with only SHR4 allowed
// and the top-level mask left open (SHR4 permitted as root), the
// enumerator must produce a candidate extensionally equal to x>>4.
func TestScenario2Shift4(t *testing.T) {
	a := New()
	a.SetAllowedOps(OpSet(0).Add(bvexpr.Shr4))
	candidates := collect(func(accept func(*bvexpr.Node, int) bool) {
		a.SetAccept(accept)
		a.Generate(3) // body budget wide enough to reach SHR4(x0), 2 nodes
	})

	probes := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x1122334455667788, 0xF000000000000000}
	found := false
	for _, c := range candidates {
		match := true
		for _, p := range probes {
			if c.Run(p) != p>>4 {
				match = false
				break
			}
		}
		if match {
			found = true
			break
		}
	}
	assert.True(t, found, "no candidate extensionally equal to (shr4 x0) was emitted")
}

// TestScenario6TimeoutStopsCleanly covers spec scenario 6: an accept
// callback simulating a time-budget expiry (returning false after a
// fixed candidate count, well before exhaustion) must stop generation
// without panicking and leave the Arena's bookkeeping intact.
func TestScenario6TimeoutStopsCleanly(t *testing.T) {
	a := New()
	a.SetAllowedOps(AllOps)
	budget := 50
	seen := 0
	assert.NotPanics(t, func() {
		a.SetAccept(func(root *bvexpr.Node, size int) bool {
			seen++
			return seen < budget
		})
		a.Generate(14)
	})
	assert.Equal(t, budget, seen)
	assert.Equal(t, 0, a.arenaPtr)
	assert.Equal(t, 0, a.valentsPtr)
}

// TestDeterminismSameParametersSameSequence covers P3: two independent
// Arena runs with identical parameters must produce byte-identical
// (same S-expression, in the same order) candidate sequences.
func TestDeterminismSameParametersSameSequence(t *testing.T) {
	allowed := OpSet(0).Add(bvexpr.And).Add(bvexpr.Or).Add(bvexpr.Not)

	run := func() []string {
		a := New()
		a.SetAllowedOps(allowed)
		var codes []string
		a.SetAccept(func(root *bvexpr.Node, size int) bool {
			codes = append(codes, root.Code())
			return true
		})
		a.Generate(5)
		return codes
	}

	first := run()
	second := run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}
