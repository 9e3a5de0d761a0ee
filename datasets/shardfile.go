package datasets

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Shard files are msgpack-encoded rectangular arrays: a small header
// (dtype, shape) followed by one flat column of values. Loading
// concatenates shards along the leading dimension in registration order.

type shardFile struct {
	Dtype string    `msgpack:"dtype"`
	Shape []int     `msgpack:"shape"`
	F32   []float32 `msgpack:"f32,omitempty"`
	I32   []int32   `msgpack:"i32,omitempty"`
}

// WriteShard serializes an array to path.
func WriteShard(path string, a *Array) error {
	if err := a.validate(); err != nil {
		return fmt.Errorf("write shard %s: %w", path, err)
	}
	sf := shardFile{Dtype: a.Dtype.String(), Shape: a.Shape}
	if a.Dtype == Int32 {
		sf.I32 = a.I32
	} else {
		sf.F32 = a.F32
	}
	raw, err := msgpack.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("write shard %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write shard %s: %w", path, err)
	}
	return nil
}

// ReadShard deserializes one shard file into an array.
func ReadShard(path string) (*Array, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shard %s: %w", path, err)
	}
	var sf shardFile
	if err := msgpack.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", path, err)
	}

	a := &Array{Shape: sf.Shape}
	switch sf.Dtype {
	case "float32":
		a.Dtype = Float32
		a.F32 = sf.F32
	case "int32":
		a.Dtype = Int32
		a.I32 = sf.I32
	default:
		return nil, fmt.Errorf("decode shard %s: unknown dtype %q", path, sf.Dtype)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", path, err)
	}
	return a, nil
}
