package codec

// Sequence is a decoded variable-length sequence. Its capacity always equals
// its length: extending it produces a new sequence sized exactly for the
// combined elements.
type Sequence struct {
	width int
	elems []uint64
}

// NewSequence creates a sequence of elements of the given byte width
func NewSequence(width int, elems ...uint64) Sequence {
	s := Sequence{width: width, elems: make([]uint64, len(elems))}
	copy(s.elems, elems)
	return s
}

// Len returns the number of elements
func (s Sequence) Len() int { return len(s.elems) }

// Cap returns the number of elements the sequence can hold without
// reallocating
func (s Sequence) Cap() int { return cap(s.elems) }

// Width returns the element width in bytes
func (s Sequence) Width() int { return s.width }

// At returns the element at index i
func (s Sequence) At(i int) uint64 { return s.elems[i] }

// Elements returns a copy of the elements
func (s Sequence) Elements() []uint64 {
	out := make([]uint64, len(s.elems))
	copy(out, s.elems)
	return out
}

// Extend returns a new sequence holding s followed by more
func (s Sequence) Extend(more []uint64) Sequence {
	out := Sequence{width: s.width, elems: make([]uint64, len(s.elems)+len(more))}
	copy(out.elems, s.elems)
	copy(out.elems[len(s.elems):], more)
	return out
}

// EncodedSize returns the size of the count prefix plus the element bytes
func (s Sequence) EncodedSize() int {
	return countWidth + len(s.elems)*s.width
}

// maxElement returns the largest element that fits in width bytes
func maxElement(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(width)) - 1
}
