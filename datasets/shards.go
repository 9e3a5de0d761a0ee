package datasets

import (
	"fmt"

	"github.com/designbench/designbench/resource"
	"github.com/rs/zerolog/log"
)

// Pair couples one design shard with its score shard. The k-th x shard
// always corresponds to the k-th y shard.
type Pair struct {
	X *resource.Handle
	Y *resource.Handle
}

// ShardSet is an ordered collection of index-aligned shard pairs. A
// missing or failed shard is a hard error for the set at load time; no
// shard is ever silently dropped.
type ShardSet struct {
	pairs []Pair
}

// NewShardSet pairs parallel x and y handle lists. The lists must have
// equal length.
func NewShardSet(xs, ys []*resource.Handle) (*ShardSet, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("shard set: %d x shards but %d y shards",
			len(xs), len(ys))
	}
	pairs := make([]Pair, len(xs))
	for i := range xs {
		pairs[i] = Pair{X: xs[i], Y: ys[i]}
	}
	return &ShardSet{pairs: pairs}, nil
}

// Len returns the number of shard pairs.
func (s *ShardSet) Len() int { return len(s.pairs) }

// Pairs returns the ordered shard pairs.
func (s *ShardSet) Pairs() []Pair { return s.pairs }

// FetchAll fetches every handle in the set and returns one success flag
// per pair (both handles must succeed for the flag to be true). It never
// aborts early: all outcomes are collected so callers see the full
// picture before deciding whether a build can proceed.
func (s *ShardSet) FetchAll(expandArchives bool) []bool {
	ok := make([]bool, len(s.pairs))
	for i, p := range s.pairs {
		xOK, xErr := p.X.Fetch(expandArchives)
		yOK, yErr := p.Y.Fetch(expandArchives)
		if xErr != nil || yErr != nil {
			// Archive expansion failed; the payload is on disk but
			// unusable as-is. Treat as a failed pair.
			log.Error().
				AnErr("x", xErr).
				AnErr("y", yErr).
				Int("shard", i).
				Msg("shard archive expansion failed")
		}
		ok[i] = xOK && yOK && xErr == nil && yErr == nil
	}
	return ok
}

// Load reads and concatenates every shard pair, in registration order,
// into two unified arrays. It fails if any shard is missing on disk, if
// dtypes drift across shards, or if per-sample shapes drift across
// shards.
func (s *ShardSet) Load() (x, y *Array, err error) {
	if len(s.pairs) == 0 {
		return nil, nil, fmt.Errorf("shard set: empty")
	}

	xParts := make([]*Array, len(s.pairs))
	yParts := make([]*Array, len(s.pairs))
	for i, p := range s.pairs {
		if !p.X.Exists() {
			return nil, nil, fmt.Errorf("%w: x shard %d (%s)",
				ErrUnfetchedShard, i, p.X.LocalPath)
		}
		if !p.Y.Exists() {
			return nil, nil, fmt.Errorf("%w: y shard %d (%s)",
				ErrUnfetchedShard, i, p.Y.LocalPath)
		}
		if xParts[i], err = ReadShard(p.X.LocalPath); err != nil {
			return nil, nil, err
		}
		if yParts[i], err = ReadShard(p.Y.LocalPath); err != nil {
			return nil, nil, err
		}
		if xParts[i].Len() != yParts[i].Len() {
			return nil, nil, fmt.Errorf("%w: shard %d has %d designs but %d scores",
				ErrShapeMismatch, i, xParts[i].Len(), yParts[i].Len())
		}
	}

	if x, err = Concat(xParts); err != nil {
		return nil, nil, fmt.Errorf("concat x shards: %w", err)
	}
	if y, err = Concat(yParts); err != nil {
		return nil, nil, fmt.Errorf("concat y shards: %w", err)
	}
	log.Debug().
		Int("shards", len(s.pairs)).
		Int("samples", x.Len()).
		Msg("loaded shard set")
	return x, y, nil
}
