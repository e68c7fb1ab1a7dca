// Package diff computes minimal edit scripts between two ordered snapshots of
// the same logical list, keyed by item identity.
//
// Compute is a pure function: it keeps no state between calls and returns
// the same operations for the same inputs. Applying the operations in order
// to the old list yields the new list exactly.
package diff

import (
	"errors"
	"fmt"
	"slices"
)

// Diffable is implemented by items that have a stable identity and a content
// equality.
type Diffable[T any] interface {
	Identity() string
	Equal(T) bool
}

// Kind is the type of an edit operation.
type Kind int

const (
	Insert Kind = iota
	Remove
	Move
	Update
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Move:
		return "move"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is one edit. Index applies to Insert, Remove and Update; From and To
// apply to Move. Item is set for Insert and Update. All indices refer to the
// list as mutated by the preceding operations.
type Op[T any] struct {
	Kind  Kind
	Index int
	From  int
	To    int
	Item  T
}

func (o Op[T]) String() string {
	if o.Kind == Move {
		return fmt.Sprintf("move %d->%d", o.From, o.To)
	}
	return fmt.Sprintf("%s %d", o.Kind, o.Index)
}

// Compute returns the operations that turn prev into next.
//
// Operations are ordered removals (descending index), insertions, moves,
// then updates. Items whose identities form the longest common subsequence
// of prev and next stay in place; every other surviving item is moved once.
// Items with the same identity but different content get an Update at their
// final index.
//
// Identities are expected to be unique within each list. If either list
// repeats an identity the result degrades to removing everything and
// inserting next, which still applies correctly.
func Compute[T Diffable[T]](prev, next []T) []Op[T] {
	if same(prev, next) {
		return nil
	}

	prevIdx, ok1 := indexOf(prev)
	nextIdx, ok2 := indexOf(next)
	if !ok1 || !ok2 {
		return rebuild(prev, next)
	}

	var ops []Op[T]

	for i := len(prev) - 1; i >= 0; i-- {
		if _, ok := nextIdx[prev[i].Identity()]; !ok {
			ops = append(ops, Op[T]{Kind: Remove, Index: i})
		}
	}

	cur := make([]T, 0, len(next))
	positions := make([]int, 0, len(next))
	for _, item := range prev {
		if j, ok := nextIdx[item.Identity()]; ok {
			cur = append(cur, item)
			positions = append(positions, j)
		}
	}

	// Stable items never move: the LCS anchors plus everything inserted.
	stable := make(map[string]bool, len(next))
	for _, i := range increasingRun(positions) {
		stable[cur[i].Identity()] = true
	}

	for j, item := range next {
		id := item.Identity()
		if _, ok := prevIdx[id]; ok {
			continue
		}
		at := 0
		for k := j - 1; k >= 0; k-- {
			if stable[next[k].Identity()] {
				at = position(cur, next[k].Identity()) + 1
				break
			}
		}
		cur = slices.Insert(cur, at, item)
		stable[id] = true
		ops = append(ops, Op[T]{Kind: Insert, Index: at, Item: item})
	}

	// Each moved item lands directly after its predecessor in next. Walking
	// next in order keeps every earlier placement adjacent, so the final list
	// equals next.
	for j, item := range next {
		id := item.Identity()
		if stable[id] {
			continue
		}
		from := position(cur, id)
		moved := cur[from]
		cur = slices.Delete(cur, from, from+1)
		to := 0
		if j > 0 {
			to = position(cur, next[j-1].Identity()) + 1
		}
		cur = slices.Insert(cur, to, moved)
		if from != to {
			ops = append(ops, Op[T]{Kind: Move, From: from, To: to})
		}
	}

	for j, item := range next {
		if i, ok := prevIdx[item.Identity()]; ok && !prev[i].Equal(item) {
			ops = append(ops, Op[T]{Kind: Update, Index: j, Item: item})
		}
	}

	return ops
}

// ErrOutOfRange is returned by Apply for an operation whose index does not
// fit the list.
var ErrOutOfRange = errors.New("diff: operation index out of range")

// Apply returns a copy of list with ops applied in order. list is not
// modified.
func Apply[T any](list []T, ops []Op[T]) ([]T, error) {
	out := slices.Clone(list)
	for n, op := range ops {
		switch op.Kind {
		case Insert:
			if op.Index < 0 || op.Index > len(out) {
				return nil, fmt.Errorf("%w: op %d %s on %d items", ErrOutOfRange, n, op, len(out))
			}
			out = slices.Insert(out, op.Index, op.Item)
		case Remove:
			if op.Index < 0 || op.Index >= len(out) {
				return nil, fmt.Errorf("%w: op %d %s on %d items", ErrOutOfRange, n, op, len(out))
			}
			out = slices.Delete(out, op.Index, op.Index+1)
		case Move:
			if op.From < 0 || op.From >= len(out) || op.To < 0 || op.To >= len(out) {
				return nil, fmt.Errorf("%w: op %d %s on %d items", ErrOutOfRange, n, op, len(out))
			}
			v := out[op.From]
			out = slices.Delete(out, op.From, op.From+1)
			out = slices.Insert(out, op.To, v)
		case Update:
			if op.Index < 0 || op.Index >= len(out) {
				return nil, fmt.Errorf("%w: op %d %s on %d items", ErrOutOfRange, n, op, len(out))
			}
			out[op.Index] = op.Item
		default:
			return nil, fmt.Errorf("diff: op %d has unknown kind %d", n, int(op.Kind))
		}
	}
	return out, nil
}

// same reports whether both lists match item for item.
func same[T Diffable[T]](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Identity() != b[i].Identity() || !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// indexOf maps identity to position. ok is false when an identity repeats.
func indexOf[T Diffable[T]](items []T) (map[string]int, bool) {
	idx := make(map[string]int, len(items))
	for i, item := range items {
		id := item.Identity()
		if _, dup := idx[id]; dup {
			return nil, false
		}
		idx[id] = i
	}
	return idx, true
}

func rebuild[T Diffable[T]](prev, next []T) []Op[T] {
	ops := make([]Op[T], 0, len(prev)+len(next))
	for i := len(prev) - 1; i >= 0; i-- {
		ops = append(ops, Op[T]{Kind: Remove, Index: i})
	}
	for j, item := range next {
		ops = append(ops, Op[T]{Kind: Insert, Index: j, Item: item})
	}
	return ops
}

func position[T Diffable[T]](items []T, id string) int {
	for i, item := range items {
		if item.Identity() == id {
			return i
		}
	}
	return -1
}

// increasingRun returns the indices of one longest strictly increasing
// subsequence of seq, in ascending order. Ties resolve to the earliest
// ending element, so the result is deterministic.
func increasingRun(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	tails := make([]int, 0, len(seq)) // index into seq of the smallest tail per length
	prev := make([]int, len(seq))
	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	out := make([]int, len(tails))
	for i, k := len(tails)-1, tails[len(tails)-1]; i >= 0; i, k = i-1, prev[k] {
		out[i] = k
	}
	return out
}
