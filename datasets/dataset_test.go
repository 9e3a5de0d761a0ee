package datasets

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/designbench/designbench/resource"
)

// writeShardPair writes one x shard and one y shard to dir and returns
// resource handles pointing at them.
func writeShardPair(t *testing.T, dir, name string, x *Array, y *Array) (*resource.Handle, *resource.Handle) {
	t.Helper()
	xPath := filepath.Join(dir, name+"-x.shard")
	yPath := filepath.Join(dir, name+"-y.shard")
	if err := WriteShard(xPath, x); err != nil {
		t.Fatalf("write x shard: %v", err)
	}
	if err := WriteShard(yPath, y); err != nil {
		t.Fatalf("write y shard: %v", err)
	}
	return resource.NewHandle(xPath, "", resource.MethodDirect),
		resource.NewHandle(yPath, "", resource.MethodDirect)
}

func mustF32(t *testing.T, data []float32, shape ...int) *Array {
	t.Helper()
	a, err := NewF32(data, shape...)
	if err != nil {
		t.Fatalf("build array: %v", err)
	}
	return a
}

// twoShardDataset builds a dataset from two shards of 5 rows each with
// scores 1..10, designs (i, i).
func twoShardDataset(t *testing.T) *Dataset {
	t.Helper()
	tmp := t.TempDir()

	x1 := make([]float32, 0, 10)
	y1 := make([]float32, 0, 5)
	x2 := make([]float32, 0, 10)
	y2 := make([]float32, 0, 5)
	for i := 1; i <= 5; i++ {
		x1 = append(x1, float32(i), float32(i))
		y1 = append(y1, float32(i))
	}
	for i := 6; i <= 10; i++ {
		x2 = append(x2, float32(i), float32(i))
		y2 = append(y2, float32(i))
	}

	xh1, yh1 := writeShardPair(t, tmp, "demo-0",
		mustF32(t, x1, 5, 2), mustF32(t, y1, 5, 1))
	xh2, yh2 := writeShardPair(t, tmp, "demo-1",
		mustF32(t, x2, 5, 2), mustF32(t, y2, 5, 1))

	set, err := NewShardSet(
		[]*resource.Handle{xh1, xh2},
		[]*resource.Handle{yh1, yh2})
	if err != nil {
		t.Fatalf("NewShardSet: %v", err)
	}
	ds, err := FromShards(set)
	if err != nil {
		t.Fatalf("FromShards: %v", err)
	}
	return ds
}

func TestFromShards_EndToEnd(t *testing.T) {
	ds := twoShardDataset(t)

	if got := ds.Size(); got != 10 {
		t.Fatalf("expected 10 samples, got %d", got)
	}
	if got := ds.InputShape(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected input shape %v", got)
	}
	if got := ds.OutputShape(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected output shape %v", got)
	}

	// Shards concatenate in registration order.
	if ds.Y().F32[0] != 1 || ds.Y().F32[9] != 10 {
		t.Fatalf("unexpected score order: %v", ds.Y().F32)
	}

	xT, yT := ds.Tensors()
	if xT == nil || yT == nil {
		t.Fatal("tensor conversion returned nil")
	}
}

func TestSubsample_PercentileWindow(t *testing.T) {
	ds := twoShardDataset(t)

	// threshold(50) over y = 1..10 is 5.5 under linear interpolation, so
	// exactly {6..10} stay visible.
	if err := ds.Subsample(50, 100); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	if got := ds.Size(); got != 5 {
		t.Fatalf("expected 5 visible samples, got %d", got)
	}
	for i := 0; i < ds.Size(); i++ {
		if v := ds.Y().F32[i]; v < 5.5 {
			t.Fatalf("score %g below lower threshold 5.5", v)
		}
	}

	// Windows always recompute from the full data, never from the
	// current view.
	if err := ds.Subsample(0, 100); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	if got := ds.Size(); got != 10 {
		t.Fatalf("expected full 10 samples back, got %d", got)
	}

	if err := ds.Subsample(60, 40); err == nil {
		t.Fatal("expected error for inverted percentile window")
	}
}

func TestSubsample_EmptyWindowIsValid(t *testing.T) {
	ds := twoShardDataset(t)

	// thresholds(49, 51) over 1..10 are 5.41 and 5.59: no score inside.
	if err := ds.Subsample(49, 51); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	if got := ds.Size(); got != 0 {
		t.Fatalf("expected empty window, got %d samples", got)
	}
}

func TestNormalize_RoundTrip(t *testing.T) {
	ds := twoShardDataset(t)

	v := mustF32(t, []float32{1.5, -2, 0, 7}, 2, 2)
	n, err := ds.NormalizeX(v)
	if err != nil {
		t.Fatalf("NormalizeX: %v", err)
	}
	back, err := ds.DenormalizeX(n)
	if err != nil {
		t.Fatalf("DenormalizeX: %v", err)
	}
	for i := range v.F32 {
		if diff := math.Abs(float64(back.F32[i] - v.F32[i])); diff > 1e-4 {
			t.Fatalf("round trip drift at %d: %g vs %g", i, back.F32[i], v.F32[i])
		}
	}

	// Pure transforms never mutate stored state.
	if ds.IsNormalizedX() {
		t.Fatal("NormalizeX must not flag the dataset as normalized")
	}
}

func TestMapNormalize_Guards(t *testing.T) {
	ds := twoShardDataset(t)

	if err := ds.MapDenormalizeX(); !errors.Is(err, ErrNotNormalized) {
		t.Fatalf("expected ErrNotNormalized, got %v", err)
	}
	if err := ds.MapNormalizeX(); err != nil {
		t.Fatalf("MapNormalizeX: %v", err)
	}
	if err := ds.MapNormalizeX(); !errors.Is(err, ErrAlreadyNormalized) {
		t.Fatalf("expected ErrAlreadyNormalized, got %v", err)
	}
	if err := ds.MapDenormalizeX(); err != nil {
		t.Fatalf("MapDenormalizeX: %v", err)
	}

	// After the full cycle the designs are back to raw values.
	if v := ds.X().F32[0]; math.Abs(float64(v)-1) > 1e-4 {
		t.Fatalf("expected raw design 1, got %g", v)
	}
}

func TestMapNormalizeY_VisibleWindowStatistics(t *testing.T) {
	ds := twoShardDataset(t)
	if err := ds.Subsample(50, 100); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	if err := ds.MapNormalizeY(); err != nil {
		t.Fatalf("MapNormalizeY: %v", err)
	}

	// Statistics reflect the visible window, so its mean is zero.
	var sum float64
	for _, v := range ds.Y().F32 {
		sum += float64(v)
	}
	if mean := sum / float64(ds.Size()); math.Abs(mean) > 1e-4 {
		t.Fatalf("expected zero mean over visible window, got %g", mean)
	}
}

func TestRelabel(t *testing.T) {
	ds := twoShardDataset(t)

	double := func(x, y *Array) (*Array, error) {
		out := y.Clone()
		for i := range out.F32 {
			out.F32[i] *= 2
		}
		return out, nil
	}
	if err := ds.Relabel(double); err != nil {
		t.Fatalf("Relabel: %v", err)
	}
	if got := ds.Y().F32[9]; got != 20 {
		t.Fatalf("expected relabeled score 20, got %g", got)
	}

	// Later windows rank by the relabeled scores.
	if err := ds.Subsample(50, 100); err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	for i := 0; i < ds.Size(); i++ {
		if v := ds.Y().F32[i]; v < 11 {
			t.Fatalf("expected relabeled scores >= 11 in window, got %g", v)
		}
	}
}

func TestRelabel_ShapeMismatchLeavesStateUntouched(t *testing.T) {
	ds := twoShardDataset(t)
	before := append([]float32(nil), ds.Y().F32...)

	wrong := func(x, y *Array) (*Array, error) {
		return NewF32(make([]float32, y.Len()*2), y.Len(), 2)
	}
	if err := ds.Relabel(wrong); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	for i, v := range ds.Y().F32 {
		if v != before[i] {
			t.Fatalf("score %d changed after failed relabel: %g vs %g", i, v, before[i])
		}
	}
}
