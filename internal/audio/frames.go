package audio

import "iter"

// Frames splits buf into consecutive frames of frameSize bytes. The final
// partial frame is yielded unpadded. The sequence is lazy and can be ranged
// over any number of times; frames alias buf.
func Frames(buf []byte, frameSize int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if len(buf) == 0 {
			return
		}
		if frameSize <= 0 {
			yield(buf)
			return
		}
		for start := 0; start < len(buf); start += frameSize {
			end := min(start+frameSize, len(buf))
			if !yield(buf[start:end:end]) {
				return
			}
		}
	}
}

// FrameCount returns how many frames Frames would yield.
func FrameCount(n, frameSize int) int {
	if n <= 0 {
		return 0
	}
	if frameSize <= 0 {
		return 1
	}
	return (n + frameSize - 1) / frameSize
}
