package synth

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/AIIA-trace/saas-ai-automation-sub000/internal/audio"
)

func muLawBuffer(n, silent int) []byte {
	buf := bytes.Repeat([]byte{0xFF}, silent)
	for len(buf) < n {
		buf = append(buf, 0x20)
	}
	return buf
}

func TestValidate(t *testing.T) {
	pcm := audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 24000}
	wavFormat := audio.Format{Encoding: audio.EncodingWAV, SampleRate: 8000}

	voiced, err := audio.EncodeWAV([]int16{1000, -1000, 2000, -2000}, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	fake := make([]byte, 50)
	copy(fake, "FAKE")

	tests := []struct {
		name   string
		data   []byte
		format audio.Format
		want   Code
	}{
		{"empty", nil, audio.Telephony, CodeEmptyAudio},
		{"wav bad magic", fake, wavFormat, CodeInvalidFormat},
		{"wav header only", voiced[:44], wavFormat, CodeEmptyAudio},
		{"wav voiced", voiced, wavFormat, ""},
		{"pcm odd length", []byte{1, 2, 3}, pcm, CodeInvalidFormat},
		{"pcm all zero", make([]byte, 960), pcm, CodeSilentAudio},
		{"ulaw 96 percent silent", muLawBuffer(100, 96), audio.Telephony, CodeSilentAudio},
		{"ulaw exactly 95 percent silent", muLawBuffer(100, 95), audio.Telephony, ""},
		{"ulaw 50 percent silent", muLawBuffer(100, 50), audio.Telephony, ""},
		{"unknown encoding", []byte{1, 2}, audio.Format{Encoding: "opus"}, CodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.data, tt.format, DefaultMaxSilenceRatio)
			if got := CodeOf(err); got != tt.want {
				t.Errorf("Expected code %q, got %q (err=%v)", tt.want, got, err)
			}
		})
	}
}

func TestSilenceByteIsPerFormat(t *testing.T) {
	// 0x00 is loud in µ-law but silent in PCM.
	zeros := make([]byte, 100)
	if err := Validate(zeros, audio.Telephony, 0); err != nil {
		t.Errorf("Expected µ-law zeros to pass, got %v", err)
	}
	if CodeOf(Validate(zeros, audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 8000}, 0)) != CodeSilentAudio {
		t.Error("Expected PCM zeros to be rejected as silent")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("greeting: %w", &AudioError{Code: CodeSilentAudio})
	if CodeOf(err) != CodeSilentAudio {
		t.Errorf("Expected wrapped code %q, got %q", CodeSilentAudio, CodeOf(err))
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("Expected empty code for non-audio error")
	}
}
