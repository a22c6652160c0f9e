package audio

import "testing"

func TestPCM16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	got := PCM16FromBytes(PCM16Bytes(samples))
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}

	if n := len(PCM16FromBytes([]byte{1, 2, 3})); n != 1 {
		t.Errorf("Expected odd trailing byte to be dropped, got %d samples", n)
	}
}

func TestTranscodePCM24kToTelephony(t *testing.T) {
	// 20ms of silence at 24kHz
	pcm := make([]byte, 960)
	out := ToTelephony(pcm, Format{Encoding: EncodingPCM16, SampleRate: 24000})

	if len(out) != 160 {
		t.Fatalf("Expected 160 µ-law bytes, got %d", len(out))
	}
	for i, b := range out {
		if b != 0xFF {
			t.Fatalf("Byte %d: expected µ-law silence 0xFF, got 0x%02X", i, b)
		}
	}
}

func TestTranscodeTelephonyToPCM24k(t *testing.T) {
	ulaw := make([]byte, 160)
	for i := range ulaw {
		ulaw[i] = 0xFF
	}
	out := Transcode(ulaw, Telephony, Format{Encoding: EncodingPCM16, SampleRate: 24000})
	if len(out) != 960 {
		t.Errorf("Expected 960 PCM bytes, got %d", len(out))
	}
}

func TestTranscodeWAVToTelephony(t *testing.T) {
	samples := make([]int16, 2400)
	wav, err := EncodeWAV(samples, 24000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	out := ToTelephony(wav, Format{Encoding: EncodingWAV, SampleRate: 24000})
	if len(out) != 800 {
		t.Errorf("Expected 800 µ-law bytes, got %d", len(out))
	}
}

func TestFormatHelpers(t *testing.T) {
	if Telephony.FrameBytes() != 160 {
		t.Errorf("Expected 160 byte telephony frame, got %d", Telephony.FrameBytes())
	}
	if Telephony.DurationMS(8000) != 1000 {
		t.Errorf("Expected 1000ms, got %d", Telephony.DurationMS(8000))
	}
	pcm := Format{Encoding: EncodingPCM16, SampleRate: 24000}
	if pcm.BytesForDuration(300) != 14400 {
		t.Errorf("Expected 14400 bytes for 300ms, got %d", pcm.BytesForDuration(300))
	}
	if pcm.SilenceByte() != 0x00 || Telephony.SilenceByte() != 0xFF {
		t.Error("Unexpected silence byte")
	}

	enc, err := ParseEncoding("ulaw")
	if err != nil || enc != EncodingMuLaw {
		t.Errorf("Expected ulaw to parse as µ-law, got %q (%v)", enc, err)
	}
	if _, err := ParseEncoding("opus"); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
}
