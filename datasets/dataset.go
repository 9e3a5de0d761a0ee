package datasets

import (
	"fmt"
	"math"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Epsilon keeps normalization well-defined for zero-variance features.
const Epsilon = 1e-6

// Dataset is the statistics and visibility pipeline over paired design
// values x and scores y.
//
// The full arrays loaded from the shard set are kept immutable; the
// visible view is re-derived from them on every Subsample call, so
// percentile windows never compound. Mutations (Subsample, Relabel, the
// Map* transforms) are all-or-nothing and are not safe for concurrent
// use; callers needing concurrency must serialize them externally.
type Dataset struct {
	fullX *Array
	fullY *Array

	x          *Array
	y          *Array
	visibleIdx []int

	minPercentile float64
	maxPercentile float64

	// Statistics over the visible window at the time they were computed.
	// Invalidated by Subsample and Relabel, recomputed lazily.
	xMean, xStd []float64
	yMean, yStd []float64
	xStatsOK    bool
	yStatsOK    bool

	xNormalized bool
	yNormalized bool
}

// New builds a dataset over unified in-memory arrays. x and y must have
// the same number of samples and y must be floating point.
func New(x, y *Array) (*Dataset, error) {
	if err := x.validate(); err != nil {
		return nil, fmt.Errorf("dataset x: %w", err)
	}
	if err := y.validate(); err != nil {
		return nil, fmt.Errorf("dataset y: %w", err)
	}
	if y.Dtype != Float32 {
		return nil, fmt.Errorf("%w: scores must be float32, got %s",
			ErrDtypeMismatch, y.Dtype)
	}
	if x.Len() != y.Len() {
		return nil, fmt.Errorf("%w: %d designs but %d scores",
			ErrShapeMismatch, x.Len(), y.Len())
	}

	d := &Dataset{
		fullX:         x.Clone(),
		fullY:         y.Clone(),
		minPercentile: 0,
		maxPercentile: 100,
	}
	d.visibleIdx = make([]int, x.Len())
	for i := range d.visibleIdx {
		d.visibleIdx[i] = i
	}
	d.x = d.fullX.Clone()
	d.y = d.fullY.Clone()
	return d, nil
}

// FromShards fetches any missing shards and loads the set into a
// dataset. Individual fetch failures are warnings; a shard that is still
// missing fails the build at load time.
func FromShards(set *ShardSet) (*Dataset, error) {
	set.FetchAll(true)
	x, y, err := set.Load()
	if err != nil {
		return nil, err
	}
	ds, err := New(x, y)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("samples", ds.Size()).
		Ints("input_shape", ds.InputShape()).
		Msg("dataset built from shards")
	return ds, nil
}

// Size returns the number of visible samples.
func (d *Dataset) Size() int { return d.x.Len() }

// X returns the visible design values. The array is a live view; treat
// it as read-only.
func (d *Dataset) X() *Array { return d.x }

// Y returns the visible scores. The array is a live view; treat it as
// read-only.
func (d *Dataset) Y() *Array { return d.y }

// InputShape returns the per-sample design shape.
func (d *Dataset) InputShape() []int { return d.x.RowShape() }

// OutputShape returns the per-sample score shape.
func (d *Dataset) OutputShape() []int { return d.y.RowShape() }

// MinPercentile returns the lower bound of the visibility window.
func (d *Dataset) MinPercentile() float64 { return d.minPercentile }

// MaxPercentile returns the upper bound of the visibility window.
func (d *Dataset) MaxPercentile() float64 { return d.maxPercentile }

// IsNormalizedX reports whether the stored designs are normalized.
func (d *Dataset) IsNormalizedX() bool { return d.xNormalized }

// IsNormalizedY reports whether the stored scores are normalized.
func (d *Dataset) IsNormalizedY() bool { return d.yNormalized }

// Tensors converts the visible arrays into gomlx tensors.
func (d *Dataset) Tensors() (x, y *tensors.Tensor) {
	return d.x.Tensor(), d.y.Tensor()
}

// percentileLinear returns the p-th percentile of sorted using linear
// interpolation between order statistics. gonum's Quantile cumulant
// kinds use a different interpolation, so this matches the convention
// the score thresholds are defined in.
func percentileLinear(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p / 100 * float64(n-1)
	i := int(math.Floor(h))
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-float64(i))*(sorted[i+1]-sorted[i])
}

// Subsample restricts visibility to samples whose leading score
// component falls within the [minPercentile, maxPercentile] band,
// inclusive. Thresholds are always computed over the full underlying
// data, never over a prior window. The visible arrays, size, and stored
// bounds are replaced atomically; statistics are invalidated.
//
// An empty window is a valid, if useless, state: callers must check
// Size() themselves.
func (d *Dataset) Subsample(minPercentile, maxPercentile float64) error {
	if minPercentile < 0 || maxPercentile > 100 || minPercentile >= maxPercentile {
		return fmt.Errorf("percentile window [%g, %g] outside 0 <= min < max <= 100",
			minPercentile, maxPercentile)
	}

	rs := d.fullY.RowSize()
	scores := make([]float64, d.fullY.Len())
	for i := range scores {
		scores[i] = float64(d.fullY.F32[i*rs])
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	keep := make([]int, 0, len(scores))
	if len(sorted) > 0 {
		lo := percentileLinear(sorted, minPercentile)
		hi := percentileLinear(sorted, maxPercentile)
		for i, v := range scores {
			if v >= lo && v <= hi {
				keep = append(keep, i)
			}
		}
	}

	d.visibleIdx = keep
	d.x = d.fullX.Take(keep)
	d.y = d.fullY.Take(keep)
	d.minPercentile = minPercentile
	d.maxPercentile = maxPercentile
	d.xStatsOK = false
	d.yStatsOK = false
	d.xNormalized = false
	d.yNormalized = false

	if len(keep) == 0 {
		log.Warn().
			Float64("min", minPercentile).
			Float64("max", maxPercentile).
			Msg("percentile window is empty")
	}
	return nil
}

// Relabel replaces the visible scores with fn(x, y), applied to the
// whole visible arrays in one call. The output must match the current
// score shape exactly. The new scores also replace the corresponding
// rows of the full data, so later Subsample calls rank by them. The
// designs and the visibility bounds are untouched; y statistics are
// invalidated.
func (d *Dataset) Relabel(fn func(x, y *Array) (*Array, error)) error {
	newY, err := fn(d.x, d.y)
	if err != nil {
		return fmt.Errorf("relabel: %w", err)
	}
	if newY.Dtype != Float32 {
		return fmt.Errorf("relabel: %w: want float32, got %s",
			ErrDtypeMismatch, newY.Dtype)
	}
	if err := newY.validate(); err != nil {
		return fmt.Errorf("relabel: %w", err)
	}
	if len(newY.Shape) != len(d.y.Shape) || !d.y.sameRowShape(newY) || newY.Len() != d.y.Len() {
		return fmt.Errorf("relabel: %w: want shape %v, got %v",
			ErrShapeMismatch, d.y.Shape, newY.Shape)
	}

	d.y = newY.Clone()
	rs := d.fullY.RowSize()
	for vi, fi := range d.visibleIdx {
		copy(d.fullY.F32[fi*rs:(fi+1)*rs], d.y.F32[vi*rs:(vi+1)*rs])
	}
	d.yStatsOK = false
	d.yNormalized = false
	return nil
}

// computeStats derives per-feature mean and population standard
// deviation over the leading axis of a.
func computeStats(a *Array) (mean, std []float64) {
	n, rs := a.Len(), a.RowSize()
	mean = make([]float64, rs)
	std = make([]float64, rs)
	if n == 0 {
		return mean, std
	}
	col := make([]float64, n)
	for f := 0; f < rs; f++ {
		for i := 0; i < n; i++ {
			col[i] = float64(a.F32[i*rs+f])
		}
		mean[f] = stat.Mean(col, nil)
		std[f] = stat.PopStdDev(col, nil)
	}
	return mean, std
}

func (d *Dataset) ensureXStats() error {
	if d.xStatsOK {
		return nil
	}
	if d.xNormalized {
		// Stats are always computed before the in-place transform, so a
		// normalized x without valid stats cannot happen.
		return fmt.Errorf("x statistics invalidated while normalized")
	}
	if d.x.Dtype != Float32 {
		return fmt.Errorf("%w: cannot compute statistics of %s designs",
			ErrDtypeMismatch, d.x.Dtype)
	}
	d.xMean, d.xStd = computeStats(d.x)
	d.xStatsOK = true
	return nil
}

func (d *Dataset) ensureYStats() error {
	if d.yStatsOK {
		return nil
	}
	if d.yNormalized {
		return fmt.Errorf("y statistics invalidated while normalized")
	}
	d.yMean, d.yStd = computeStats(d.y)
	d.yStatsOK = true
	return nil
}

// applyAffine maps v through the normalization transform (or its exact
// inverse) without touching v.
func applyAffine(v *Array, mean, std []float64, invert bool) *Array {
	out := v.Clone()
	rs := v.RowSize()
	for i := 0; i < v.Len(); i++ {
		for f := 0; f < rs; f++ {
			idx := i*rs + f
			val := float64(v.F32[idx])
			if invert {
				val = val*(std[f]+Epsilon) + mean[f]
			} else {
				val = (val - mean[f]) / (std[f] + Epsilon)
			}
			out.F32[idx] = float32(val)
		}
	}
	return out
}

func (d *Dataset) checkLike(v *Array, ref *Array, what string) error {
	if v.Dtype != Float32 {
		return fmt.Errorf("%w: %s must be float32, got %s",
			ErrDtypeMismatch, what, v.Dtype)
	}
	if len(v.Shape) != len(ref.Shape) || !ref.sameRowShape(v) {
		return fmt.Errorf("%w: %s row shape %v does not match dataset %v",
			ErrShapeMismatch, what, v.RowShape(), ref.RowShape())
	}
	return nil
}

// NormalizeX standardizes an arbitrary design array using the dataset's
// current statistics. It never mutates stored state.
func (d *Dataset) NormalizeX(v *Array) (*Array, error) {
	if err := d.checkLike(v, d.x, "designs"); err != nil {
		return nil, err
	}
	if err := d.ensureXStats(); err != nil {
		return nil, err
	}
	return applyAffine(v, d.xMean, d.xStd, false), nil
}

// DenormalizeX is the exact inverse of NormalizeX under unchanged
// statistics.
func (d *Dataset) DenormalizeX(v *Array) (*Array, error) {
	if err := d.checkLike(v, d.x, "designs"); err != nil {
		return nil, err
	}
	if err := d.ensureXStats(); err != nil {
		return nil, err
	}
	return applyAffine(v, d.xMean, d.xStd, true), nil
}

// NormalizeY standardizes an arbitrary score array using the dataset's
// current statistics. It never mutates stored state.
func (d *Dataset) NormalizeY(v *Array) (*Array, error) {
	if err := d.checkLike(v, d.y, "scores"); err != nil {
		return nil, err
	}
	if err := d.ensureYStats(); err != nil {
		return nil, err
	}
	return applyAffine(v, d.yMean, d.yStd, false), nil
}

// DenormalizeY is the exact inverse of NormalizeY under unchanged
// statistics.
func (d *Dataset) DenormalizeY(v *Array) (*Array, error) {
	if err := d.checkLike(v, d.y, "scores"); err != nil {
		return nil, err
	}
	if err := d.ensureYStats(); err != nil {
		return nil, err
	}
	return applyAffine(v, d.yMean, d.yStd, true), nil
}

// MapNormalizeX standardizes the stored designs in place. Calling it
// twice without an intervening MapDenormalizeX is an error.
func (d *Dataset) MapNormalizeX() error {
	if d.xNormalized {
		return fmt.Errorf("x: %w", ErrAlreadyNormalized)
	}
	if err := d.ensureXStats(); err != nil {
		return err
	}
	d.x = applyAffine(d.x, d.xMean, d.xStd, false)
	d.xNormalized = true
	return nil
}

// MapDenormalizeX undoes MapNormalizeX. Calling it on raw designs is an
// error.
func (d *Dataset) MapDenormalizeX() error {
	if !d.xNormalized {
		return fmt.Errorf("x: %w", ErrNotNormalized)
	}
	d.x = applyAffine(d.x, d.xMean, d.xStd, true)
	d.xNormalized = false
	return nil
}

// MapNormalizeY standardizes the stored scores in place. Calling it
// twice without an intervening MapDenormalizeY is an error.
func (d *Dataset) MapNormalizeY() error {
	if d.yNormalized {
		return fmt.Errorf("y: %w", ErrAlreadyNormalized)
	}
	if err := d.ensureYStats(); err != nil {
		return err
	}
	d.y = applyAffine(d.y, d.yMean, d.yStd, false)
	d.yNormalized = true
	return nil
}

// MapDenormalizeY undoes MapNormalizeY. Calling it on raw scores is an
// error.
func (d *Dataset) MapDenormalizeY() error {
	if !d.yNormalized {
		return fmt.Errorf("y: %w", ErrNotNormalized)
	}
	d.y = applyAffine(d.y, d.yMean, d.yStd, true)
	d.yNormalized = false
	return nil
}
