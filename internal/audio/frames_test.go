package audio

import "testing"

func TestFramesSplitsWithPartialTail(t *testing.T) {
	buf := make([]byte, 400)
	for i := range buf {
		buf[i] = byte(i)
	}

	var sizes []int
	for f := range Frames(buf, 160) {
		sizes = append(sizes, len(f))
	}

	want := []int{160, 160, 80}
	if len(sizes) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(sizes))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, want[i], sizes[i])
		}
	}
	if FrameCount(len(buf), 160) != 3 {
		t.Errorf("Expected FrameCount 3, got %d", FrameCount(len(buf), 160))
	}
}

func TestFramesIsRestartable(t *testing.T) {
	buf := make([]byte, 320)
	seq := Frames(buf, 160)

	for pass := 0; pass < 2; pass++ {
		n := 0
		for range seq {
			n++
		}
		if n != 2 {
			t.Errorf("Pass %d: expected 2 frames, got %d", pass, n)
		}
	}
}

func TestFramesEarlyBreak(t *testing.T) {
	n := 0
	for range Frames(make([]byte, 1600), 160) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected to stop after 3 frames, got %d", n)
	}
}

func TestFramesAppendDoesNotClobber(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	for f := range Frames(buf, 2) {
		_ = append(f, 0xEE)
	}
	if buf[2] != 3 {
		t.Errorf("Appending to a frame overwrote the next frame: %v", buf)
	}
}

func TestFramesEmptyAndUnbounded(t *testing.T) {
	for range Frames(nil, 160) {
		t.Fatal("Expected no frames for empty buffer")
	}

	n := 0
	for f := range Frames([]byte{1, 2, 3}, 0) {
		n++
		if len(f) != 3 {
			t.Errorf("Expected whole buffer as one frame, got %d bytes", len(f))
		}
	}
	if n != 1 {
		t.Errorf("Expected 1 frame, got %d", n)
	}
}
