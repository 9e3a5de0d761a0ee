package datasets

import (
	"fmt"
	"math"
)

// Discrete is a dataset whose design space is categorical: designs are
// either integer category indices or their continuous logit
// representation. The representation in effect is tracked explicitly so
// a conversion can never be applied in the wrong direction.
type Discrete struct {
	*Dataset

	// NumClasses defines the last dimension of the logit representation.
	NumClasses int

	// SoftInterpolation in [0, 1] blends a uniform category distribution
	// (0) with a one-hot distribution (1) when encoding categories as
	// logits. At exactly 0 the encoding collapses to uniform regardless
	// of category and is not invertible; that is a documented degenerate
	// state, not an error.
	SoftInterpolation float64

	isLogits bool
}

// NewDiscrete builds a discrete dataset over integer category designs.
// Every category index must lie in [0, numClasses).
func NewDiscrete(x, y *Array, numClasses int, softInterpolation float64) (*Discrete, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("discrete dataset: need at least 2 classes, got %d", numClasses)
	}
	if softInterpolation < 0 || softInterpolation > 1 {
		return nil, fmt.Errorf("discrete dataset: soft interpolation %g outside [0, 1]",
			softInterpolation)
	}
	if x.Dtype != Int32 {
		return nil, fmt.Errorf("%w: discrete designs must be int32, got %s",
			ErrDtypeMismatch, x.Dtype)
	}
	for i, v := range x.I32 {
		if v < 0 || int(v) >= numClasses {
			return nil, fmt.Errorf("discrete dataset: category %d at element %d outside [0, %d)",
				v, i, numClasses)
		}
	}

	base, err := New(x, y)
	if err != nil {
		return nil, err
	}
	return &Discrete{
		Dataset:           base,
		NumClasses:        numClasses,
		SoftInterpolation: softInterpolation,
	}, nil
}

// DiscreteFromShards fetches and loads a shard set into a discrete
// dataset.
func DiscreteFromShards(set *ShardSet, numClasses int, softInterpolation float64) (*Discrete, error) {
	set.FetchAll(true)
	x, y, err := set.Load()
	if err != nil {
		return nil, err
	}
	return NewDiscrete(x, y, numClasses, softInterpolation)
}

// IsLogits reports whether the stored designs are currently in logit
// form.
func (d *Discrete) IsLogits() bool { return d.isLogits }

// ToLogits converts integer category designs into continuous logits.
// Per position it forms the convex blend
//
//	p = SoftInterpolation*onehot + (1-SoftInterpolation)*uniform
//
// and returns log(p), so the true category stays recoverable by argmax
// for any SoftInterpolation > 0. The output appends a NumClasses axis.
func (d *Discrete) ToLogits(ints *Array) (*Array, error) {
	if ints.Dtype != Int32 {
		return nil, fmt.Errorf("%w: to-logits input must be int32, got %s",
			ErrDtypeMismatch, ints.Dtype)
	}

	k := d.NumClasses
	s := d.SoftInterpolation
	// At s == 1 the off-category mass is zero and log yields -Inf; the
	// dirac encoding still argmax-decodes correctly.
	off := float32(math.Log((1 - s) / float64(k)))
	on := float32(math.Log(s + (1-s)/float64(k)))

	shape := append(append([]int(nil), ints.Shape...), k)
	out := make([]float32, len(ints.I32)*k)
	for i, c := range ints.I32 {
		if c < 0 || int(c) >= k {
			return nil, fmt.Errorf("to-logits: category %d at element %d outside [0, %d)",
				c, i, k)
		}
		base := i * k
		for j := 0; j < k; j++ {
			out[base+j] = off
		}
		out[base+int(c)] = on
	}
	return NewF32(out, shape...)
}

// ToIntegers recovers integer categories from logits by taking, per
// position, the index of the maximum along the last (category) axis.
// Ties break toward the lowest index.
func (d *Discrete) ToIntegers(logits *Array) (*Array, error) {
	if logits.Dtype != Float32 {
		return nil, fmt.Errorf("%w: to-integers input must be float32, got %s",
			ErrDtypeMismatch, logits.Dtype)
	}
	k := d.NumClasses
	if len(logits.Shape) < 2 || logits.Shape[len(logits.Shape)-1] != k {
		return nil, fmt.Errorf("%w: last axis must be %d categories, got shape %v",
			ErrShapeMismatch, k, logits.Shape)
	}

	shape := append([]int(nil), logits.Shape[:len(logits.Shape)-1]...)
	out := make([]int32, len(logits.F32)/k)
	for i := range out {
		base := i * k
		best := 0
		for j := 1; j < k; j++ {
			if logits.F32[base+j] > logits.F32[base+best] {
				best = j
			}
		}
		out[i] = int32(best)
	}
	return NewI32(out, shape...)
}

// MapToLogits converts the stored designs to logit form in place,
// covering both the visible view and the full underlying data so later
// Subsample calls stay in the same representation. Converting designs
// already in logit form is an error, as is converting while normalized.
func (d *Discrete) MapToLogits() error {
	if d.isLogits {
		return ErrAlreadyLogits
	}
	if d.xNormalized {
		return fmt.Errorf("x: %w: denormalize before converting", ErrAlreadyNormalized)
	}

	newFull, err := d.ToLogits(d.fullX)
	if err != nil {
		return err
	}
	newVisible, err := d.ToLogits(d.x)
	if err != nil {
		return err
	}
	d.fullX = newFull
	d.x = newVisible
	d.xStatsOK = false
	d.isLogits = true
	return nil
}

// MapToIntegers converts the stored logit designs back to integer
// categories in place. Converting designs already in integer form is an
// error, as is converting while normalized.
func (d *Discrete) MapToIntegers() error {
	if !d.isLogits {
		return ErrNotLogits
	}
	if d.xNormalized {
		return fmt.Errorf("x: %w: denormalize before converting", ErrAlreadyNormalized)
	}

	newFull, err := d.ToIntegers(d.fullX)
	if err != nil {
		return err
	}
	newVisible, err := d.ToIntegers(d.x)
	if err != nil {
		return err
	}
	d.fullX = newFull
	d.x = newVisible
	d.xStatsOK = false
	d.isLogits = false
	return nil
}
