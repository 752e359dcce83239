// Package arena implements the bottom-up exhaustive program enumerator
// (the "Arena"/"Generator" of the BV solver): a depth-first constructor
// over the bvexpr grammar that emits every syntactically well-formed
// program of a given size exactly once, modulo the peephole-equivalence
// pruning rules, using a preallocated node pool and an in-place valence
// stack so that enumeration allocates nothing per candidate.
package arena

import "bvsolve/internal/bvexpr"

// poolCapacity bounds the largest program body the Arena can hold.
// 512 nodes is generous for ICFP BV sizes, which top out well under
// 100; a nested fold-body sub-arena gets its own pool of the same size.
const poolCapacity = 512

// valentCapacity bounds the valence stack. A node of arity a removes a
// and adds 1, so the stack can never hold more entries than the pool.
const valentCapacity = poolCapacity

// AcceptFunc consumes one completed candidate program. It returns
// true to keep enumerating, false to stop — the Arena checks this at
// every candidate-complete point and propagates the stop upward
// through its recursion, then unwinds normally (arena_ptr and the
// valence stack are restored on every exit path, nested or not).
type AcceptFunc func(root *bvexpr.Node, size int) (keepGoing bool)

// Arena is one enumeration frame. It owns its pool and valence stack
// exclusively; a nested fold-body enumerator (see emitFold in fold.go)
// is an independent Arena value with its own pool.
type Arena struct {
	pool     [poolCapacity]bvexpr.Node
	arenaPtr int

	valents    [valentCapacity]*bvexpr.Node
	valentsPtr int

	sizeTarget int // current pass's body size (excludes the lambda token)
	numVars    int
	valence    int // target valence for this pass (1 for a normal program)
	count      int

	optimize   bool
	noMoreFold bool
	done       bool

	allowed      OpSet
	topForbidden PropertyMask

	accept AcceptFunc

	// foldBody is read by pushOp when emitting a FOLD node: in free
	// mode it is supplied by a nested sub-Arena (see fold.go); in
	// TFOLD mode the wrapper sets it to the just-completed body root
	// from its own pool.
	foldBody *bvexpr.Node
}

// New returns a ready-to-use Arena with optimize (peephole pruning) on.
func New() *Arena {
	return &Arena{optimize: true, allowed: AllOps}
}

// SetAccept installs the sink for completed candidates.
func (a *Arena) SetAccept(f AcceptFunc) { a.accept = f }

// SetAllowedOps restricts which of the eleven gated operators may be
// emitted; C0/C1/VAR remain always available.
func (a *Arena) SetAllowedOps(ops OpSet) { a.allowed = ops }

// SetTopLevelProperties installs the top-level shift restriction mask
// derived from probing the oracle (spec §4.6).
func (a *Arena) SetTopLevelProperties(m PropertyMask) { a.topForbidden = m }

// SetOptimize toggles peephole-equivalence pruning. Off by default is
// never correct for production use; tests use this to check P2
// completeness against the unpruned grammar.
func (a *Arena) SetOptimize(on bool) { a.optimize = on }

// Count returns how many candidates were completed by the most recent
// Generate call (diagnostic only).
func (a *Arena) Count() int { return a.count }

// Generate enumerates every program whose body (the "e" in `(lambda
// (x0) e)`) has node count from the minimum reachable up through
// bodySize, inclusive, feeding each to the installed AcceptFunc. This
// mirrors the reference solver's single generate() call per challenge
// size: one call walks every smaller valid size too, not just the
// maximum.
func (a *Arena) Generate(bodySize int) {
	a.generate(bodySize, 1, 1)
}

// generate is the shared entry point for the plain top-level pass and
// for a nested fold-body pass (valence/args differ there). sizeTarget
// ranges from valence (the smallest tree that can produce valence
// completed subtrees: one leaf each) up through bodySize, inclusive.
func (a *Arena) generate(bodySize, valence, args int) {
	a.count = 0
	for sizeTarget := valence; sizeTarget <= bodySize; sizeTarget++ {
		if a.done {
			return
		}
		a.sizeTarget = sizeTarget
		a.arenaPtr = 0
		a.valentsPtr = 0
		a.valence = valence
		a.numVars = args
		a.gen(a.sizeTarget, 0)
	}
}

// gen is the main recursion: at each step it considers every operator
// whose arity fits the current valence and whose post-emit budget can
// still reach the target (left==0, v==valence_), in a fixed
// tie-break order: nullaries, unaries, binaries, then IF0, and FOLD
// last since it is the most expensive to even attempt (it spins up a
// nested enumerator).
func (a *Arena) gen(leftOps, valence int) {
	if a.done {
		return
	}

	maxValence := a.valence + (leftOps-1)*2
	minValence := a.valence - (leftOps - 1)

	// Nullary: C0, C1, VAR(0..numVars-1). Always available regardless
	// of the declared operator subset.
	if minValence <= valence+1 && valence+1 <= maxValence {
		a.emit(bvexpr.C0, -1)
		if a.done {
			return
		}
		a.emit(bvexpr.C1, -1)
		if a.done {
			return
		}
		for i := 0; i < a.numVars; i++ {
			a.emit(bvexpr.Var, i)
			if a.done {
				return
			}
		}
	}

	// Unary: NOT, SHL1, SHR1, SHR4, SHR16.
	if minValence <= valence && valence <= maxValence && valence >= 1 {
		opnd := a.peepArg(0)
		topLevel := leftOps == 1
		if !(a.optimize && opnd.Op == bvexpr.Not) {
			a.tryUnary(bvexpr.Not, topLevel)
			if a.done {
				return
			}
		}
		// Do not shift a constant 0 — shl1/shr*(0) is always 0, and
		// 0 is already reachable directly as C0.
		if !(a.optimize && opnd.IsConstVal(0)) {
			a.tryUnary(bvexpr.Shl1, topLevel)
			if a.done {
				return
			}
		}
		// shr1/shr4/shr16(1) is always 0 too (shl1(1)=2 is not, so it
		// keeps the plain zero-operand guard above).
		if !(a.optimize && (opnd.IsConstVal(0) || opnd.IsConstVal(1))) {
			a.tryUnary(bvexpr.Shr1, topLevel)
			if a.done {
				return
			}
			a.tryUnary(bvexpr.Shr4, topLevel)
			if a.done {
				return
			}
			a.tryUnary(bvexpr.Shr16, topLevel)
			if a.done {
				return
			}
		}
	}

	// Binary: PLUS, OR, XOR, AND.
	if minValence <= valence-1 && valence-1 <= maxValence && valence >= 2 {
		o1, o2 := a.peepArg(0), a.peepArg(1)
		zeroOperand := a.optimize && (o1.IsConstVal(0) || o2.IsConstVal(0))
		if !zeroOperand {
			a.emitIfAllowed(bvexpr.Plus, -1)
			if a.done {
				return
			}
			a.emitIfAllowed(bvexpr.Or, -1)
			if a.done {
				return
			}
			a.emitIfAllowed(bvexpr.Xor, -1)
			if a.done {
				return
			}
			a.emitIfAllowed(bvexpr.And, -1)
			if a.done {
				return
			}
		}
	}

	// Ternary: IF0.
	if minValence <= valence-2 && valence-2 <= maxValence && valence >= 3 {
		cond := a.peepArg(0)
		if !(a.optimize && cond.IsConst()) {
			a.emitIfAllowed(bvexpr.If0, -1)
			if a.done {
				return
			}
		}
	}

	// FOLD consumes at least 3 ops of budget: the FOLD node itself
	// plus a minimal 2-node body.
	maxValenceFold := a.valence + (leftOps-3)*2
	minValenceFold := a.valence - (leftOps - 3)
	if minValenceFold <= valence-1 && valence-1 <= maxValenceFold && valence >= 2 {
		a.emitFold()
	}
}

func (a *Arena) tryUnary(op bvexpr.Op, topLevel bool) {
	if topLevel && a.topForbidden.Forbids(op) {
		return
	}
	a.emitIfAllowed(op, -1)
}

func (a *Arena) emitIfAllowed(op bvexpr.Op, v int) {
	if !a.allowed.Has(op) {
		return
	}
	a.emit(op, v)
}

// emit pushes op, completes or recurses, then unwinds — the emit is
// reversed bit-exactly regardless of which branch was taken.
func (a *Arena) emit(op bvexpr.Op, v int) {
	if a.done {
		return
	}
	n := a.pushOp(op, v)
	if a.arenaPtr == a.sizeTarget {
		// Complete only at the target valence: a FOLD whose body took
		// the rest of the budget can leave extra subtrees on the stack.
		if a.valentsPtr == a.valence {
			a.finish(n, a.sizeTarget+1)
		}
	} else {
		a.gen(a.sizeTarget-a.arenaPtr, a.valentsPtr)
	}
	a.popOp()
}

// finish hands a completed candidate to the sink and latches `done`
// if it asks to stop.
func (a *Arena) finish(root *bvexpr.Node, size int) bool {
	a.count++
	if a.accept == nil {
		return true
	}
	keepGoing := a.accept(root, size)
	if !keepGoing {
		a.done = true
	}
	return keepGoing
}

// peepArg returns the argTh-from-top value currently on the valence
// stack, used to inspect not-yet-emitted operators' would-be operands
// for the peephole rules.
func (a *Arena) peepArg(argFromTop int) *bvexpr.Node {
	return a.valents[a.valentsPtr-argFromTop-1]
}

// consumeArity is the number of valence-stack operands op actually
// draws: its arity, except that FOLD draws only 2 (data, seed); the
// body is supplied separately.
func consumeArity(op bvexpr.Op) int {
	if op == bvexpr.Fold {
		return 2
	}
	return op.Arity()
}

// pushOp emits one node into the next pool slot, wiring its operands
// from the top of the valence stack (in reverse arity order, as
// pop(0) yields the shallowest-scoped operand) and constant-folding it
// eagerly when every operand (and the op itself) permits it.
func (a *Arena) pushOp(op bvexpr.Op, v int) *bvexpr.Node {
	n := &a.pool[a.arenaPtr]
	a.arenaPtr++
	*n = bvexpr.Node{Op: op, Var: v}

	ar := consumeArity(op)
	constExpr := op != bvexpr.Var && op != bvexpr.Fold
	for i := 0; i < ar; i++ {
		a.valentsPtr--
		opnd := a.valents[a.valentsPtr]
		n.Operands[i] = opnd
		constExpr = constExpr && opnd.Const
	}
	if op == bvexpr.Fold {
		n.Operands[2] = a.foldBody
	}

	if constExpr {
		// No context needed: a const subtree can't reference any VAR.
		n.Val = n.Eval(nil)
		n.Const = true
	}

	a.valents[a.valentsPtr] = n
	a.valentsPtr++
	return n
}

// popOp is pushOp's strict inverse: it restores the valence stack to
// exactly its pre-push state.
func (a *Arena) popOp() {
	a.arenaPtr--
	n := &a.pool[a.arenaPtr]
	a.valentsPtr--

	ar := consumeArity(n.Op)
	for i := ar - 1; i >= 0; i-- {
		a.valents[a.valentsPtr] = n.Operands[i]
		a.valentsPtr++
	}
}
