package diff

import (
	"errors"
	"math/rand"
	"reflect"
	"strconv"
	"testing"
)

type row struct {
	id   int
	text string
}

func (r row) Identity() string { return strconv.Itoa(r.id) }
func (r row) Equal(o row) bool { return r == o }

func rows(pairs ...any) []row {
	var out []row
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, row{id: pairs[i].(int), text: pairs[i+1].(string)})
	}
	return out
}

func mustApply(t *testing.T, prev []row, ops []Op[row]) []row {
	t.Helper()
	got, err := Apply(prev, ops)
	if err != nil {
		t.Fatalf("Apply failed: %v (ops %v)", err, ops)
	}
	return got
}

func assertRoundTrip(t *testing.T, prev, next []row) []Op[row] {
	t.Helper()
	ops := Compute(prev, next)
	got := mustApply(t, prev, ops)
	if len(got) == 0 && len(next) == 0 {
		return ops
	}
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("round trip failed\nprev %v\nnext %v\nops  %v\ngot  %v", prev, next, ops, got)
	}
	return ops
}

func countKind(ops []Op[row], k Kind) int {
	n := 0
	for _, op := range ops {
		if op.Kind == k {
			n++
		}
	}
	return n
}

func TestComputeSameIsEmpty(t *testing.T) {
	s := rows(1, "A", 2, "B", 3, "C")
	if ops := Compute(s, s); len(ops) != 0 {
		t.Errorf("expected no ops, got %v", ops)
	}
	if ops := Compute[row](nil, nil); len(ops) != 0 {
		t.Errorf("expected no ops for empty lists, got %v", ops)
	}
}

func TestComputeExampleScenario(t *testing.T) {
	prev := rows(1, "A", 2, "B", 3, "C")
	next := rows(2, "B", 4, "D", 1, "A2")

	ops := assertRoundTrip(t, prev, next)

	want := []Op[row]{
		{Kind: Remove, Index: 2},
		{Kind: Insert, Index: 2, Item: row{4, "D"}},
		{Kind: Move, From: 0, To: 2},
		{Kind: Update, Index: 2, Item: row{1, "A2"}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}

func TestComputeOrdering(t *testing.T) {
	prev := rows(1, "a", 2, "b", 3, "c", 4, "d", 5, "e")
	next := rows(6, "f", 5, "e", 2, "B", 4, "d", 7, "g")
	ops := assertRoundTrip(t, prev, next)

	rank := map[Kind]int{Remove: 0, Insert: 1, Move: 2, Update: 3}
	for i := 1; i < len(ops); i++ {
		if rank[ops[i].Kind] < rank[ops[i-1].Kind] {
			t.Fatalf("ops out of order at %d: %v", i, ops)
		}
	}
	for i := 1; i < len(ops); i++ {
		if ops[i].Kind == Remove && ops[i-1].Kind == Remove && ops[i].Index >= ops[i-1].Index {
			t.Errorf("removals should be descending: %v", ops)
		}
	}
}

func TestComputeAppendOnly(t *testing.T) {
	prev := rows(1, "a", 2, "b")
	next := rows(1, "a", 2, "b", 3, "c", 4, "d")
	ops := assertRoundTrip(t, prev, next)

	want := []Op[row]{
		{Kind: Insert, Index: 2, Item: row{3, "c"}},
		{Kind: Insert, Index: 3, Item: row{4, "d"}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}

func TestComputePrepend(t *testing.T) {
	prev := rows(3, "c", 4, "d")
	next := rows(1, "a", 2, "b", 3, "c", 4, "d")
	ops := assertRoundTrip(t, prev, next)
	if len(ops) != 2 || countKind(ops, Insert) != 2 {
		t.Errorf("expected two inserts, got %v", ops)
	}
}

func TestComputeSingleMoveIsMinimal(t *testing.T) {
	prev := rows(4, "d", 1, "a", 2, "b", 3, "c")
	next := rows(1, "a", 2, "b", 3, "c", 4, "d")
	ops := assertRoundTrip(t, prev, next)
	if len(ops) != 1 || ops[0].Kind != Move {
		t.Errorf("expected a single move, got %v", ops)
	}
}

func TestComputeContentOnlyChange(t *testing.T) {
	prev := rows(1, "a", 2, "b")
	next := rows(1, "a", 2, "B")
	ops := assertRoundTrip(t, prev, next)
	want := []Op[row]{{Kind: Update, Index: 1, Item: row{2, "B"}}}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}

func TestComputeReverse(t *testing.T) {
	prev := rows(1, "a", 2, "b", 3, "c", 4, "d")
	next := rows(4, "d", 3, "c", 2, "b", 1, "a")
	ops := assertRoundTrip(t, prev, next)
	if countKind(ops, Move) != 3 {
		t.Errorf("reversing 4 items needs 3 moves, got %v", ops)
	}
}

func TestComputeDisjoint(t *testing.T) {
	assertRoundTrip(t, rows(1, "a", 2, "b"), rows(3, "c", 4, "d", 5, "e"))
	assertRoundTrip(t, rows(1, "a", 2, "b"), nil)
	assertRoundTrip(t, nil, rows(1, "a"))
}

func TestComputeDuplicateIdentitiesFallBack(t *testing.T) {
	prev := rows(1, "a", 1, "a2", 2, "b")
	next := rows(2, "b", 1, "a")
	ops := assertRoundTrip(t, prev, next)
	if countKind(ops, Remove) != 3 || countKind(ops, Insert) != 2 {
		t.Errorf("expected rebuild, got %v", ops)
	}
}

func TestComputeDeterministic(t *testing.T) {
	prev := rows(1, "a", 2, "b", 3, "c", 4, "d", 5, "e")
	next := rows(3, "c", 1, "A", 6, "f", 5, "e", 2, "b")
	first := Compute(prev, next)
	for i := 0; i < 20; i++ {
		if got := Compute(prev, next); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestComputeRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		prev := randomRows(rng, rng.Intn(12), 20)
		next := randomRows(rng, rng.Intn(12), 20)
		assertRoundTrip(t, prev, next)
	}
}

// randomRows returns n rows with unique ids drawn from [0, space).
func randomRows(rng *rand.Rand, n, space int) []row {
	perm := rng.Perm(space)[:n]
	out := make([]row, n)
	for i, id := range perm {
		out[i] = row{id: id, text: strconv.Itoa(rng.Intn(2))}
	}
	return out
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	prev := rows(1, "a", 2, "b")
	ops := []Op[row]{{Kind: Update, Index: 0, Item: row{1, "z"}}}
	if _, err := Apply(prev, ops); err != nil {
		t.Fatal(err)
	}
	if prev[0].text != "a" {
		t.Error("Apply mutated its input")
	}
}

func TestApplyOutOfRange(t *testing.T) {
	tests := []Op[row]{
		{Kind: Insert, Index: 5},
		{Kind: Remove, Index: 2},
		{Kind: Move, From: 0, To: 2},
		{Kind: Update, Index: -1},
	}
	for _, op := range tests {
		if _, err := Apply(rows(1, "a", 2, "b"), []Op[row]{op}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%v: expected ErrOutOfRange, got %v", op, err)
		}
	}
}

func TestIncreasingRun(t *testing.T) {
	tests := []struct {
		seq  []int
		want []int
	}{
		{nil, nil},
		{[]int{0, 1, 2}, []int{0, 1, 2}},
		{[]int{2, 0}, []int{1}},
		{[]int{3, 0, 1, 2}, []int{1, 2, 3}},
		{[]int{1, 3, 0, 2, 4}, []int{2, 3, 4}},
	}
	for _, tt := range tests {
		if got := increasingRun(tt.seq); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("increasingRun(%v) = %v, want %v", tt.seq, got, tt.want)
		}
	}
}

func TestOpString(t *testing.T) {
	if s := (Op[row]{Kind: Move, From: 1, To: 3}).String(); s != "move 1->3" {
		t.Errorf("unexpected %q", s)
	}
	if s := (Op[row]{Kind: Insert, Index: 2}).String(); s != "insert 2" {
		t.Errorf("unexpected %q", s)
	}
}
