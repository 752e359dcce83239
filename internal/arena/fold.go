package arena

import "bvsolve/internal/bvexpr"

// emitFold implements free-mode FOLD synthesis (spec §4.3): FOLD's
// first two operands (data, seed) are drawn from the valence stack
// like any other binary node; its third operand (the body) is
// synthesized by an independent nested Arena over body sizes up to
// the remaining budget, with num_vars=3 and nested folds disabled.
//
// Each completed body is spliced in as a ready-made third operand:
// the nested enumerator's accept callback suspends the outer arena's
// arenaPtr past the body's node count, emits FOLD above it, then
// restores arenaPtr — so the outer enumeration's bookkeeping treats
// the (already-built, externally-owned) body as if it were emitted
// contiguously, without copying it into the outer pool.
func (a *Arena) emitFold() {
	if a.noMoreFold || a.done {
		return
	}
	if !a.allowed.Has(bvexpr.Fold) {
		return
	}

	a.noMoreFold = true
	defer func() { a.noMoreFold = false }()

	maxBodySize := a.sizeTarget - a.arenaPtr - 1 // 1 slot reserved for FOLD itself
	if maxBodySize < 2 {
		return
	}

	body := New()
	body.optimize = a.optimize
	body.noMoreFold = true // inner folds are never allowed
	body.allowed = a.allowed
	body.accept = func(root *bvexpr.Node, size int) bool {
		// A fold body that is a pure constant or exactly VAR(0) makes
		// the fold vacuous; discard it but keep searching.
		if a.optimize && (root.IsConst() || root.IsVar(0)) {
			return true
		}
		// size counts the body's nodes plus the lambda token; the body
		// itself occupies size-1 slots of the outer budget.
		bodyNodes := size - 1
		a.arenaPtr += bodyNodes
		a.foldBody = root
		a.emit(bvexpr.Fold, -1)
		a.arenaPtr -= bodyNodes
		return !a.done
	}
	body.generate(maxBodySize, 1, 3)
}

// ArenaTfold synthesizes TFOLD-mode programs: the target is known to
// be `(fold x0 0 (lambda (x1 x2) body))`, so the root is fixed and
// only body is enumerated.
type ArenaTfold struct {
	Arena
}

// NewTfold returns a ready ArenaTfold.
func NewTfold() *ArenaTfold {
	a := &ArenaTfold{}
	a.optimize = true
	a.allowed = AllOps
	return a
}

// Generate enumerates every program of exactly programSize (the full
// `(lambda (x0) (fold x0 0 (lambda (x1 x2) body)))` size), varying
// only body. The lambda, FOLD, VAR(0), and C0 tokens fix 4 of the
// size budget, so body gets exactly programSize-4 nodes — not a
// range: the TFOLD shape is already committed to a specific total
// size by the challenge.
func (a *ArenaTfold) Generate(programSize int) {
	bodySize := programSize - 4
	if bodySize < 1 {
		return
	}
	a.noMoreFold = true
	a.count = 0
	a.arenaPtr = 0
	a.valentsPtr = 0
	a.valence = 1
	a.numVars = 3
	a.sizeTarget = bodySize

	origAccept := a.accept
	a.accept = func(root *bvexpr.Node, size int) bool {
		if a.optimize && (root.IsConst() || root.IsVar(0)) {
			return true
		}
		a.pushOp(bvexpr.C0, -1)
		a.pushOp(bvexpr.Var, 0)
		a.foldBody = root
		n := a.pushOp(bvexpr.Fold, -1)
		keepGoing := true
		if origAccept != nil {
			keepGoing = origAccept(n, programSize)
		}
		a.popOp()
		a.popOp()
		a.popOp()
		return keepGoing
	}
	a.gen(bodySize, 0)
}

// ArenaBonus synthesizes BONUS-mode programs: the target is known to
// be an outer `(if0 (and 1 g) t e)` guard, so the three unknowns
// (g, t, e) are enumerated jointly with num_vars=1 (inner FOLD still
// permitted), sharing one continuous size budget via valence=3.
type ArenaBonus struct {
	Arena
}

// NewBonus returns a ready ArenaBonus.
func NewBonus() *ArenaBonus {
	a := &ArenaBonus{}
	a.optimize = true
	a.allowed = AllOps
	return a
}

// Generate enumerates every program of size up to programSize whose
// root is the BONUS guard shape; the lambda token and the if0, and, c1
// nodes of (lambda (x0) (if0 (and 1 g) t e)) fix 4 of the size budget,
// so g/t/e jointly share at most programSize-4 nodes.
func (a *ArenaBonus) Generate(programSize int) {
	a.count = 0
	// The program root is always IF0 here, so the top-level shift mask
	// has nothing to forbid (the last-emitted unknown is g, not the root).
	a.topForbidden = 0
	origAccept := a.accept
	a.accept = func(root *bvexpr.Node, size int) bool {
		a.pushOp(bvexpr.C1, -1)
		a.pushOp(bvexpr.And, -1)
		n := a.pushOp(bvexpr.If0, -1)
		keepGoing := true
		if origAccept != nil {
			// size is g+t+e nodes plus the lambda; add if0, and, c1.
			keepGoing = origAccept(n, size+3)
		}
		a.popOp()
		a.popOp()
		a.popOp()
		return keepGoing
	}
	a.generate(programSize-4, 3, 1)
}
