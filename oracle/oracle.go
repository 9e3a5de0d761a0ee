// Package oracle scores flattened policy parameter vectors by decoding
// them into feed-forward controller weights and rolling the controller
// out in a simulated control environment.
package oracle

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Env is the simulated environment contract: an episodic control task
// that produces observations and consumes actions. It is a fixed
// external boundary; the physics behind it are not this package's
// concern.
type Env interface {
	// Reset starts a new episode and returns the first observation.
	Reset() ([]float32, error)

	// Step applies an action and returns the next observation, the
	// reward, and whether the episode terminated.
	Step(action []float32) (obs []float32, reward float32, done bool, err error)
}

// Factory constructs a fresh environment. Every Score call builds its
// own private instance, so independent scores share no mutable state
// and are safe to run in parallel.
type Factory func() (Env, error)

// Stream is one decoded weight tensor.
type Stream struct {
	Shape []int
	Data  []float32
}

// Oracle decodes flat parameter vectors into a two-hidden-layer
// feed-forward policy (tanh hidden activations, linear output) and
// scores them by a single simulated rollout.
type Oracle struct {
	// ObsDim, ActionDim and HiddenDim fix the policy architecture and
	// therefore the flat vector layout.
	ObsDim    int
	ActionDim int
	HiddenDim int

	// NewEnv builds the private environment for each Score call. A
	// construction failure is treated as environment misconfiguration
	// and propagates fatally.
	NewEnv Factory

	// MaxEpisodeSteps caps a rollout when > 0. Zero means the episode
	// runs until the environment reports done.
	MaxEpisodeSteps int
}

// New builds an oracle for the given policy architecture.
func New(obsDim, actionDim, hiddenDim int, newEnv Factory) *Oracle {
	return &Oracle{
		ObsDim:    obsDim,
		ActionDim: actionDim,
		HiddenDim: hiddenDim,
		NewEnv:    newEnv,
	}
}

// StreamShapes declares how a flat vector decomposes into named weight
// tensors: alternating weight matrix and bias vector per layer. The
// trailing (1, ActionDim) stream is a reserved action log-std slot from
// the stochastic-policy training format; it is decoded and then
// discarded.
func (o *Oracle) StreamShapes() [][]int {
	return [][]int{
		{o.ObsDim, o.HiddenDim},
		{o.HiddenDim},
		{o.HiddenDim, o.HiddenDim},
		{o.HiddenDim},
		{o.HiddenDim, o.ActionDim},
		{o.ActionDim},
		{1, o.ActionDim},
	}
}

// StreamSizes returns the element count of each stream.
func (o *Oracle) StreamSizes() []int {
	shapes := o.StreamShapes()
	sizes := make([]int, len(shapes))
	for i, s := range shapes {
		n := 1
		for _, d := range s {
			n *= d
		}
		sizes[i] = n
	}
	return sizes
}

// TotalSize returns the flat vector length the oracle expects.
func (o *Oracle) TotalSize() int {
	total := 0
	for _, n := range o.StreamSizes() {
		total += n
	}
	return total
}

// Decode slices a flat vector into the declared streams. A vector whose
// length does not match the declared layout is a fatal decode error.
func (o *Oracle) Decode(flat []float32) ([]Stream, error) {
	if len(flat) != o.TotalSize() {
		return nil, fmt.Errorf("decode: flat vector has %d elements, layout wants %d",
			len(flat), o.TotalSize())
	}
	shapes := o.StreamShapes()
	sizes := o.StreamSizes()
	streams := make([]Stream, len(shapes))
	offset := 0
	for i := range shapes {
		streams[i] = Stream{
			Shape: shapes[i],
			Data:  flat[offset : offset+sizes[i]],
		}
		offset += sizes[i]
	}
	return streams, nil
}

// matVec computes in · W + b for a row-major [in][out] weight matrix.
func matVec(in []float32, w Stream, b Stream) []float32 {
	rows, cols := w.Shape[0], w.Shape[1]
	out := make([]float32, cols)
	copy(out, b.Data)
	for i := 0; i < rows; i++ {
		v := in[i]
		row := w.Data[i*cols : (i+1)*cols]
		for j := 0; j < cols; j++ {
			out[j] += v * row[j]
		}
	}
	return out
}

func tanhVec(v []float32) {
	for i := range v {
		v[i] = float32(math.Tanh(float64(v[i])))
	}
}

// policy is the decoded controller: tanh, tanh, linear.
type policy struct {
	streams []Stream
}

func (p *policy) act(obs []float32) []float32 {
	h := matVec(obs, p.streams[0], p.streams[1])
	tanhVec(h)
	h = matVec(h, p.streams[2], p.streams[3])
	tanhVec(h)
	return matVec(h, p.streams[4], p.streams[5])
}

// Score decodes flat into a policy, runs one episode in a fresh
// environment, and returns the summed reward. Decode errors fail before
// any simulation step; environment construction failures propagate.
func (o *Oracle) Score(flat []float32) (float32, error) {
	streams, err := o.Decode(flat)
	if err != nil {
		return 0, err
	}
	// The trailing log-std stream is unused at evaluation time.
	pol := &policy{streams: streams[:6]}

	env, err := o.NewEnv()
	if err != nil {
		return 0, fmt.Errorf("construct environment: %w", err)
	}

	obs, err := env.Reset()
	if err != nil {
		return 0, fmt.Errorf("reset environment: %w", err)
	}

	var ret float32
	for step := 0; ; step++ {
		if o.MaxEpisodeSteps > 0 && step >= o.MaxEpisodeSteps {
			break
		}
		next, reward, done, err := env.Step(pol.act(obs))
		if err != nil {
			return 0, fmt.Errorf("step environment: %w", err)
		}
		ret += reward
		if done {
			break
		}
		obs = next
	}
	return ret, nil
}

// ScoreBatch scores independent flat vectors across a worker pool. Each
// worker builds its own environments, so no locking is needed. The
// first error aborts the batch result.
func (o *Oracle) ScoreBatch(flats [][]float32) ([]float32, error) {
	n := len(flats)
	if n == 0 {
		return nil, nil
	}

	scores := make([]float32, n)
	errs := make([]error, n)

	workerCount := runtime.NumCPU()
	if workerCount > n {
		workerCount = n
	}
	jobs := make(chan int, n)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i], errs[i] = o.Score(flats[i])
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("score %d: %w", i, err)
		}
	}
	return scores, nil
}
