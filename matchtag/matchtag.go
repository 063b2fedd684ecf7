// Package matchtag allocates request/response correlation tags.
//
// The 32-bit tag space is partitioned into [PoolLength] blocks of
// [BlockSize] tags. A caller reserves a whole block, and may use any tag in
// [Tag, Tag+length) without further coordination. Block 0 is reserved, so
// [None] is never granted.
package matchtag

import (
	"fmt"

	"github.com/joeycumines/go-fluxcore"
)

// Tag is a correlation identifier embedded in a message.
type Tag uint32

const (
	// None is the "no tag" sentinel.
	None Tag = 0

	// BlockSize is the number of tags in one block. Allocations must be
	// strictly smaller.
	BlockSize = 1 << 24

	// PoolLength is the number of blocks, including the reserved block 0.
	PoolLength = 256
)

// Block returns the block index of the tag.
func (t Tag) Block() int { return int(t >> 24) }

// String implements fmt.Stringer.
func (t Tag) String() string {
	if t == None {
		return `none`
	}
	return fmt.Sprintf(`%d:%d`, t.Block(), uint32(t)&(BlockSize-1))
}

// Pool tracks block occupancy. The zero value is ready to use.
//
// A Pool is not safe for concurrent use.
type Pool struct {
	blocks [PoolLength]int
}

// Alloc reserves the first free block for length tags, scanning from block 1
// upward, returning the first tag of the block.
//
// Fails with [fluxcore.ErrInvalidArgument] if length is outside
// [1, BlockSize), or [fluxcore.ErrOutOfMemory] if every block is taken.
func (p *Pool) Alloc(length int) (Tag, error) {
	if length <= 0 || length >= BlockSize {
		return None, fluxcore.NewError(`matchtag alloc`, fluxcore.ErrInvalidArgument, fmt.Errorf(`length %d`, length))
	}
	for i := 1; i < PoolLength; i++ {
		if p.blocks[i] == 0 {
			p.blocks[i] = length
			return Tag(i) << 24, nil
		}
	}
	return None, fluxcore.NewError(`matchtag alloc`, fluxcore.ErrOutOfMemory, nil)
}

// Free releases the block holding tag, but only if length matches the length
// it was allocated with. Anything else is ignored.
func (p *Pool) Free(tag Tag, length int) {
	i := tag.Block()
	if i > 0 && i < PoolLength && p.blocks[i] == length {
		p.blocks[i] = 0
	}
}

// Allocated returns the length recorded for the block holding tag, or 0.
func (p *Pool) Allocated(tag Tag) int {
	if i := tag.Block(); i > 0 && i < PoolLength {
		return p.blocks[i]
	}
	return 0
}

// Available returns the number of free blocks.
func (p *Pool) Available() (n int) {
	for i := 1; i < PoolLength; i++ {
		if p.blocks[i] == 0 {
			n++
		}
	}
	return
}
