package datasets

import "errors"

// Sentinel errors surfaced by the loading and statistics pipeline. All
// are wrapped with context (expected vs. actual shapes, shard paths) at
// the point of failure.
var (
	// ErrUnfetchedShard marks a load attempt against a shard that is not
	// present on disk.
	ErrUnfetchedShard = errors.New("shard not fetched")

	// ErrDtypeMismatch marks inconsistent element types across shards or
	// between an input and the dataset.
	ErrDtypeMismatch = errors.New("dtype mismatch")

	// ErrShapeMismatch marks inconsistent per-sample shapes.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAlreadyNormalized guards against double normalization.
	ErrAlreadyNormalized = errors.New("already normalized")

	// ErrNotNormalized guards denormalization of raw data.
	ErrNotNormalized = errors.New("not normalized")

	// ErrAlreadyLogits guards logit conversion of logit-form designs.
	ErrAlreadyLogits = errors.New("designs already in logit form")

	// ErrNotLogits guards integer conversion of integer-form designs.
	ErrNotLogits = errors.New("designs not in logit form")
)
