package sliceops

// SwapBuf returns a reversed copy of in.
func SwapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}

	return a
}

// PadTo returns a copy of in extended with zero bytes to n bytes. A slice
// already n bytes or longer is copied unchanged.
func PadTo(in []byte, n int) []byte {
	size := n
	if len(in) > size {
		size = len(in)
	}
	out := make([]byte, size)
	copy(out, in)
	return out
}

// IsErased reports whether every byte of b is 0xff, the state of erased NOR
// flash.
func IsErased(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}
