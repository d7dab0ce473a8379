package protocol

// Command sequence numbers are 12 bits wide and wrap.
const (
	SeqBits = 12
	SeqMask = 1<<SeqBits - 1
	seqHalf = 1 << (SeqBits - 1)
)

// IsStale reports whether seq is not newer than last, using modular
// arithmetic: (seq - last - 1) & 0xFFF with bit 11 set means seq is at or
// behind last. IsStale(last, last) is true.
func IsStale(seq, last uint16) bool {
	delta := (int(seq) - int(last) - 1) & SeqMask
	return delta&seqHalf != 0
}

// NextSeq returns the sequence number following seq.
func NextSeq(seq uint16) uint16 {
	return (seq + 1) & SeqMask
}
