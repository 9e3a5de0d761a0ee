package datasets

import (
	"errors"
	"testing"
)

func mustI32(t *testing.T, data []int32, shape ...int) *Array {
	t.Helper()
	a, err := NewI32(data, shape...)
	if err != nil {
		t.Fatalf("build array: %v", err)
	}
	return a
}

// demoDiscrete builds a 4-class dataset of 6 sequences of length 3.
func demoDiscrete(t *testing.T, soft float64) *Discrete {
	t.Helper()
	x := mustI32(t, []int32{
		0, 1, 2,
		3, 2, 1,
		0, 0, 0,
		3, 3, 3,
		1, 2, 0,
		2, 0, 3,
	}, 6, 3)
	y := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 6, 1)
	d, err := NewDiscrete(x, y, 4, soft)
	if err != nil {
		t.Fatalf("NewDiscrete: %v", err)
	}
	return d
}

func TestToLogits_RoundTrip(t *testing.T) {
	d := demoDiscrete(t, 0.6)

	c := mustI32(t, []int32{0, 3, 1, 2, 2, 0}, 2, 3)
	logits, err := d.ToLogits(c)
	if err != nil {
		t.Fatalf("ToLogits: %v", err)
	}
	if len(logits.Shape) != 3 || logits.Shape[2] != 4 {
		t.Fatalf("unexpected logit shape %v", logits.Shape)
	}
	back, err := d.ToIntegers(logits)
	if err != nil {
		t.Fatalf("ToIntegers: %v", err)
	}
	for i := range c.I32 {
		if back.I32[i] != c.I32[i] {
			t.Fatalf("category %d: got %d, want %d", i, back.I32[i], c.I32[i])
		}
	}
}

func TestToLogits_DiracRoundTrip(t *testing.T) {
	d := demoDiscrete(t, 1)

	c := mustI32(t, []int32{2, 0, 3}, 1, 3)
	logits, err := d.ToLogits(c)
	if err != nil {
		t.Fatalf("ToLogits: %v", err)
	}
	back, err := d.ToIntegers(logits)
	if err != nil {
		t.Fatalf("ToIntegers: %v", err)
	}
	for i := range c.I32 {
		if back.I32[i] != c.I32[i] {
			t.Fatalf("category %d: got %d, want %d", i, back.I32[i], c.I32[i])
		}
	}
}

func TestToLogits_ZeroInterpolationIsDegenerate(t *testing.T) {
	d := demoDiscrete(t, 0)

	c := mustI32(t, []int32{2, 0, 3}, 1, 3)
	logits, err := d.ToLogits(c)
	if err != nil {
		t.Fatalf("ToLogits: %v", err)
	}
	// Uniform regardless of category: argmax tie-breaks to index 0.
	back, err := d.ToIntegers(logits)
	if err != nil {
		t.Fatalf("ToIntegers: %v", err)
	}
	for i := range back.I32 {
		if back.I32[i] != 0 {
			t.Fatalf("expected degenerate decode to 0, got %d at %d", back.I32[i], i)
		}
	}
}

func TestToIntegers_TieBreaksLowestIndex(t *testing.T) {
	d := demoDiscrete(t, 0.6)

	logits := mustF32(t, []float32{
		0.5, 0.5, 0.1, 0.5,
		-1, -1, -1, -1,
	}, 2, 1, 4)
	ints, err := d.ToIntegers(logits)
	if err != nil {
		t.Fatalf("ToIntegers: %v", err)
	}
	if ints.I32[0] != 0 || ints.I32[1] != 0 {
		t.Fatalf("expected ties to break to 0, got %v", ints.I32)
	}
}

func TestMapConversions_GuardDirection(t *testing.T) {
	d := demoDiscrete(t, 0.6)

	if err := d.MapToIntegers(); !errors.Is(err, ErrNotLogits) {
		t.Fatalf("expected ErrNotLogits, got %v", err)
	}
	if err := d.MapToLogits(); err != nil {
		t.Fatalf("MapToLogits: %v", err)
	}
	if !d.IsLogits() {
		t.Fatal("expected logit form")
	}
	if err := d.MapToLogits(); !errors.Is(err, ErrAlreadyLogits) {
		t.Fatalf("expected ErrAlreadyLogits, got %v", err)
	}
	if err := d.MapToIntegers(); err != nil {
		t.Fatalf("MapToIntegers: %v", err)
	}
	if d.IsLogits() {
		t.Fatal("expected integer form")
	}

	// The full cycle restores the original categories.
	if d.X().I32[0] != 0 || d.X().I32[3] != 3 {
		t.Fatalf("unexpected categories after round trip: %v", d.X().I32[:6])
	}
}

func TestMapToLogits_SurvivesSubsample(t *testing.T) {
	d := demoDiscrete(t, 0.6)
	if err := d.MapToLogits(); err != nil {
		t.Fatalf("MapToLogits: %v", err)
	}
	if err := d.Subsample(50, 100); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	if !d.IsLogits() {
		t.Fatal("representation flag lost across Subsample")
	}
	if got := d.X().Shape; len(got) != 3 || got[2] != 4 {
		t.Fatalf("expected logit-shaped designs after Subsample, got %v", got)
	}
}

func TestMapToLogits_NormalizationInterlock(t *testing.T) {
	d := demoDiscrete(t, 0.6)
	if err := d.MapToLogits(); err != nil {
		t.Fatalf("MapToLogits: %v", err)
	}
	if err := d.MapNormalizeX(); err != nil {
		t.Fatalf("MapNormalizeX: %v", err)
	}
	if err := d.MapToIntegers(); !errors.Is(err, ErrAlreadyNormalized) {
		t.Fatalf("expected ErrAlreadyNormalized, got %v", err)
	}
	if err := d.MapDenormalizeX(); err != nil {
		t.Fatalf("MapDenormalizeX: %v", err)
	}
	if err := d.MapToIntegers(); err != nil {
		t.Fatalf("MapToIntegers after denormalize: %v", err)
	}
}

func TestNormalize_IntegerDesignsRejected(t *testing.T) {
	d := demoDiscrete(t, 0.6)
	if err := d.MapNormalizeX(); !errors.Is(err, ErrDtypeMismatch) {
		t.Fatalf("expected ErrDtypeMismatch for integer designs, got %v", err)
	}
}
