package audio

import "testing"

func TestMuLawTableReferenceValues(t *testing.T) {
	tests := []struct {
		in   byte
		want int16
	}{
		{0x00, -32124},
		{0x01, -31100},
		{0x0F, -16764},
		{0x10, -15996},
		{0x70, -120},
		{0x7E, -8},
		{0x7F, 0},
		{0x80, 32124},
		{0x8F, 16764},
		{0xF0, 120},
		{0xFE, 8},
		{0xFF, 0},
	}

	for _, tt := range tests {
		if got := MuLawToLinear(tt.in); got != tt.want {
			t.Errorf("MuLawToLinear(0x%02X) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMuLawTableSymmetry(t *testing.T) {
	for b := 0; b < 128; b++ {
		neg := MuLawToLinear(byte(b))
		pos := MuLawToLinear(byte(b | 0x80))
		if neg != -pos {
			t.Errorf("entries 0x%02X/0x%02X not symmetric: %d vs %d", b, b|0x80, neg, pos)
		}
	}
}

func TestMuLawRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		// 0x7F is negative zero and collapses onto 0xFF.
		if b == 0x7F {
			continue
		}
		got := LinearToMuLaw(MuLawToLinear(byte(b)))
		if got != byte(b) {
			t.Errorf("round trip 0x%02X -> %d -> 0x%02X", b, MuLawToLinear(byte(b)), got)
		}
	}
}

func TestLinearToMuLawExtremes(t *testing.T) {
	if got := LinearToMuLaw(-32768); got != 0x00 {
		t.Errorf("LinearToMuLaw(-32768) = 0x%02X, want 0x00", got)
	}
	if got := LinearToMuLaw(32767); got != 0x80 {
		t.Errorf("LinearToMuLaw(32767) = 0x%02X, want 0x80", got)
	}
	if got := LinearToMuLaw(0); got != 0xFF {
		t.Errorf("LinearToMuLaw(0) = 0x%02X, want 0xFF", got)
	}
}

func TestLinearToMuLawIsMonotonic(t *testing.T) {
	prev := MuLawToLinear(LinearToMuLaw(-32768))
	for s := -32768; s <= 32767; s += 7 {
		cur := MuLawToLinear(LinearToMuLaw(int16(s)))
		if cur < prev {
			t.Fatalf("quantized value decreased at %d: %d < %d", s, cur, prev)
		}
		prev = cur
	}
}

func TestDecodeEncodeBulk(t *testing.T) {
	in := []byte{0x00, 0x10, 0x55, 0xAA, 0xFF, 0x80}
	out := EncodeMuLaw(DecodeMuLaw(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d bytes, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, in[i], out[i])
		}
	}
}
