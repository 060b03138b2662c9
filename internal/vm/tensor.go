package vm

import (
	"fmt"
	"sync/atomic"

	"fortio.org/safecast"

	"slab/internal/types"
)

// Tensor is the runtime tensor buffer. All fields except the reference
// count are immutable after construction, so concurrent reads of a shared
// tensor are safe; concurrent in-place overwrite is the caller's data race
// to avoid.
type Tensor struct {
	refs atomic.Int32

	elem    types.ElementType
	extents []int32
	data    []float32
}

func (t *Tensor) refCount() *atomic.Int32 { return &t.refs }

// destroy releases the buffer. The count reaching zero calls this exactly
// once; a later access of the data is a use-after-free bug in the caller.
func (t *Tensor) destroy() {
	t.data = nil
	t.extents = nil
}

// NewTensor builds a tensor holding a copy of data and returns the first
// owning handle.
func NewTensor(extents []int32, elem types.ElementType, data []float32) (Ref[*Tensor], error) {
	n := 1
	for _, e := range extents {
		if e < 0 {
			return Ref[*Tensor]{}, fmt.Errorf("vm: negative extent %d", e)
		}
		n *= int(e)
	}
	if len(data) != n {
		return Ref[*Tensor]{}, fmt.Errorf("vm: data length %d does not match extents (want %d)", len(data), n)
	}
	t := &Tensor{
		elem:    elem,
		extents: append([]int32(nil), extents...),
		data:    append([]float32(nil), data...),
	}
	return NewRef(t), nil
}

// ElementType returns the element kind.
func (t *Tensor) ElementType() types.ElementType { return t.elem }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int32 {
	r, err := safecast.Conv[int32](len(t.extents))
	if err != nil {
		panic(fmt.Errorf("vm: rank overflow: %w", err))
	}
	return r
}

// Extent returns the size of one dimension.
func (t *Tensor) Extent(dim int) int32 { return t.extents[dim] }

// Extents returns the extents array. Callers must not mutate it.
func (t *Tensor) Extents() []int32 { return t.extents }

// Data returns the element buffer. Mutating it through an aliasable value
// is the overwrite operation; everyone else must treat it as read-only.
func (t *Tensor) Data() []float32 { return t.data }

// DataByteSize returns the number of bytes occupied by the element data.
func (t *Tensor) DataByteSize() int32 {
	sz, err := safecast.Conv[int32](len(t.data) * int(t.elem.ByteSize()))
	if err != nil {
		panic(fmt.Errorf("vm: byte size overflow: %w", err))
	}
	return sz
}

// cloneTensor copies the buffer into a fresh tensor with its own count.
func cloneTensor(t *Tensor) Ref[*Tensor] {
	n := &Tensor{
		elem:    t.elem,
		extents: append([]int32(nil), t.extents...),
		data:    append([]float32(nil), t.data...),
	}
	return NewRef(n)
}
