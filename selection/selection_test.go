package selection

import (
	"errors"
	"testing"

	"github.com/albertocavalcante/go-bundlestate/version"
	"github.com/google/go-cmp/cmp"
)

func elem(id int64, name, v string, deps ...*Dependency) *Element {
	return &Element{ID: id, Name: name, Version: version.MustParse(v), Dependencies: deps}
}

func dep(name, r string) *Dependency {
	return &Dependency{Name: name, Range: version.MustParseRange(r)}
}

func ids(es []*Element) []int64 {
	out := make([]int64, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}

func TestSolveChain(t *testing.T) {
	// A -> B -> C, D -> missing
	c := elem(3, "C", "1.0.0")
	b := elem(2, "B", "1.0.0", dep("C", "1.0"))
	a := elem(1, "A", "1.0.0", dep("B", "[1.0,2.0)"))
	d := elem(4, "D", "1.0.0", dep("E", ""))

	res, err := Solve([]*Element{d, c, b, a}, nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids(res.Resolved)); diff != "" {
		t.Errorf("Solve() resolved mismatch (-want +got):\n%s", diff)
	}
	f, ok := res.Failures[d]
	if !ok || f.Kind != FailureMissing || f.Dependency.Name != "E" {
		t.Errorf("Failures[D] = %+v, want missing E", f)
	}
	if got := res.Wiring[a.Dependencies[0]]; len(got) != 1 || got[0] != b {
		t.Errorf("Wiring[A->B] = %v, want [B]", got)
	}
}

func TestSolveOptionalDependency(t *testing.T) {
	opt := dep("Missing", "")
	opt.Optional = true
	a := elem(1, "A", "1.0.0", opt)

	res, err := Solve([]*Element{a}, nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if len(res.Resolved) != 1 {
		t.Fatalf("Solve() resolved = %v, want [A]", res.Resolved)
	}
	if _, ok := res.Wiring[opt]; ok {
		t.Errorf("Wiring[optional] present, want absent")
	}
}

func TestSolveCycleConvergence(t *testing.T) {
	a := elem(1, "A", "1.0.0", dep("B", ""))
	b := elem(2, "B", "1.0.0", dep("A", ""))

	res, err := Solve([]*Element{a, b}, nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.CycleBreaks != 1 {
		t.Errorf("CycleBreaks = %d, want 1", res.CycleBreaks)
	}
	if f := res.Failures[a]; f.Kind != FailureCycle {
		t.Errorf("Failures[A].Kind = %v, want cycle", f.Kind)
	}
	if f := res.Failures[b]; f.Kind != FailureMissing {
		t.Errorf("Failures[B].Kind = %v, want missing", f.Kind)
	}
	if len(res.Resolved) != 0 {
		t.Errorf("Resolved = %v, want none", res.Resolved)
	}
}

func TestSolveCycleBreaksLowestSet(t *testing.T) {
	// Three-way cycle C -> B -> A -> C; the set holding the lowest id loses.
	a := elem(7, "A", "1.0.0", dep("C", ""))
	b := elem(5, "B", "1.0.0", dep("A", ""))
	c := elem(9, "C", "1.0.0", dep("B", ""))
	// An independent element that still resolves.
	x := elem(1, "X", "1.0.0")

	res, err := Solve([]*Element{a, b, c, x}, nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if f := res.Failures[b]; f.Kind != FailureCycle {
		t.Errorf("Failures[B].Kind = %v, want cycle", f.Kind)
	}
	if f := res.Failures[b]; f.Dependency == nil || f.Dependency.Name != "A" {
		t.Errorf("Failures[B].Dependency = %v, want A", f.Dependency)
	}
	if diff := cmp.Diff([]int64{1}, ids(res.Resolved)); diff != "" {
		t.Errorf("Resolved mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveCycleWithAlternative(t *testing.T) {
	// A requires B; B 1.0 requires A, B 2.0 has no dependencies.
	// The fixed point picks B 2.0 and no cycle needs breaking.
	a := elem(1, "A", "1.0.0", dep("B", ""))
	b1 := elem(2, "B", "1.0.0", dep("A", ""))
	b2 := elem(3, "B", "2.0.0")

	res, err := Solve([]*Element{a, b1, b2}, AlwaysHighest())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.CycleBreaks != 0 {
		t.Errorf("CycleBreaks = %d, want 0", res.CycleBreaks)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids(res.Resolved)); diff != "" {
		t.Errorf("Resolved mismatch (-want +got):\n%s", diff)
	}
	if got := res.Wiring[a.Dependencies[0]]; len(got) != 1 || got[0] != b2 {
		t.Errorf("Wiring[A->B] = %v, want [B 2.0]", got)
	}
}

func TestSolveFixedElementsBreakCycles(t *testing.T) {
	a := elem(1, "A", "1.0.0", dep("B", ""))
	a.Resolved = true
	b := elem(2, "B", "1.0.0", dep("A", ""))

	res, err := Solve([]*Element{a, b}, nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if diff := cmp.Diff([]int64{2}, ids(res.Resolved)); diff != "" {
		t.Errorf("Resolved mismatch (-want +got):\n%s", diff)
	}
	if _, ok := res.Failures[a]; ok {
		t.Errorf("fixed element reported as failure")
	}
}

func TestSolveSingletons(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		fixed  bool
		want   int64
	}{
		{name: "highest wins", policy: AlwaysHighest(), want: 2},
		{name: "least perturbation without history", policy: LeastPerturbation(), want: 2},
		{name: "resolved singleton wins", policy: AlwaysHighest(), fixed: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s1 := elem(1, "S", "1.0.0")
			s2 := elem(2, "S", "2.0.0")
			s1.Singleton, s2.Singleton = true, true
			s1.Resolved = tt.fixed

			res, err := Solve([]*Element{s1, s2}, tt.policy)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			winner, loser := s1, s2
			if tt.want == 2 {
				winner, loser = s2, s1
			}
			if _, failed := res.Failures[winner]; failed {
				t.Errorf("winner %v failed", winner)
			}
			f := res.Failures[loser]
			if f.Kind != FailureSingleton || f.Winner != winner {
				t.Errorf("Failures[loser] = %+v, want singleton lost to %v", f, winner)
			}
		})
	}
}

func TestPolicySelection(t *testing.T) {
	// R accepts any X; X 1.0 was resolved before this round.
	tests := []struct {
		name   string
		policy Policy
		want   string
	}{
		{name: "least perturbation keeps previous", policy: LeastPerturbation(), want: "1.0.0"},
		{name: "highest upgrades", policy: AlwaysHighest(), want: "2.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x1 := elem(1, "X", "1.0.0")
			x1.Previous = true
			x2 := elem(2, "X", "2.0.0")
			r := elem(3, "R", "1.0.0", dep("X", "1.0"))

			res, err := Solve([]*Element{x1, x2, r}, tt.policy)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			got := res.Wiring[r.Dependencies[0]]
			if len(got) != 1 || got[0].Version.String() != tt.want {
				t.Errorf("Wiring[R->X] = %v, want X %s", got, tt.want)
			}
		})
	}
}

func TestLeastPerturbationPrefersMostRequirers(t *testing.T) {
	x1 := elem(1, "X", "1.0.0")
	x2 := elem(2, "X", "2.0.0")
	r1 := elem(3, "R1", "1.0.0", dep("X", "1.0"))
	r2 := elem(4, "R2", "1.0.0", dep("X", "[1.0,2.0)"))
	r3 := elem(5, "R3", "1.0.0", dep("X", "[1.0,2.0)"))

	res, err := Solve([]*Element{x1, x2, r1, r2, r3}, LeastPerturbation())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if got := res.Wiring[r1.Dependencies[0]]; len(got) != 1 || got[0] != x1 {
		t.Errorf("Wiring[R1->X] = %v, want X 1.0.0", got)
	}
}

func TestSolveMultipleAndAllowed(t *testing.T) {
	h1 := elem(1, "H", "1.0.0")
	h2 := elem(2, "H", "2.0.0")
	h3 := elem(3, "H", "3.0.0")
	d := dep("H", "")
	d.Multiple = true
	d.Allowed = func(e *Element) bool { return e != h3 }
	frag := elem(4, "F", "1.0.0", d)

	res, err := Solve([]*Element{h1, h2, h3, frag}, AlwaysHighest())
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if diff := cmp.Diff([]int64{2, 1}, ids(res.Wiring[d])); diff != "" {
		t.Errorf("Wiring[F->H] mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveInvalidInput(t *testing.T) {
	_, err := Solve([]*Element{nil}, nil)
	var se *SelectionError
	if !errors.As(err, &se) || se.Code != "NIL_ELEMENT" {
		t.Errorf("Solve(nil element) error = %v, want NIL_ELEMENT", err)
	}

	_, err = Solve([]*Element{{ID: 1, Name: "A", Dependencies: []*Dependency{nil}}}, nil)
	if !errors.As(err, &se) || se.Code != "NIL_DEPENDENCY" {
		t.Errorf("Solve(nil dependency) error = %v, want NIL_DEPENDENCY", err)
	}
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", "least-perturbation", "highest", "always-highest"} {
		if _, err := PolicyByName(name); err != nil {
			t.Errorf("PolicyByName(%q) error = %v", name, err)
		}
	}
	if _, err := PolicyByName("newest"); err == nil {
		t.Errorf("PolicyByName(newest) error = nil, want error")
	}
}
