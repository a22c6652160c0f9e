package audio

import "encoding/binary"

// PCM16FromBytes converts little-endian 16-bit PCM to samples.
// A trailing odd byte is dropped.
func PCM16FromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// PCM16Bytes converts samples to little-endian 16-bit PCM.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Samples decodes a buffer of the given format into linear samples and
// reports the sample rate they are at. Malformed input yields the samples
// that could be recovered.
func Samples(data []byte, f Format) ([]int16, int) {
	switch f.Encoding {
	case EncodingMuLaw:
		return DecodeMuLaw(data), f.SampleRate
	case EncodingWAV:
		samples, rate, err := DecodeWAV(data)
		if err != nil {
			if len(data) > wavHeaderSize {
				return PCM16FromBytes(data[wavHeaderSize:]), f.SampleRate
			}
			return nil, f.SampleRate
		}
		return samples, rate
	default:
		return PCM16FromBytes(data), f.SampleRate
	}
}

// Transcode converts a buffer from one format to another, resampling when
// the rates differ. WAV output is written with a fresh header.
func Transcode(data []byte, from, to Format) []byte {
	if from == to && from.Encoding != EncodingWAV {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	samples, rate := Samples(data, from)
	if rate > 0 && to.SampleRate > 0 && rate != to.SampleRate {
		samples = Resample(samples, rate, to.SampleRate)
	}

	switch to.Encoding {
	case EncodingMuLaw:
		return EncodeMuLaw(samples)
	case EncodingWAV:
		if len(samples) == 0 {
			return nil
		}
		out, err := EncodeWAV(samples, to.SampleRate)
		if err != nil {
			return nil
		}
		return out
	default:
		return PCM16Bytes(samples)
	}
}

// ToTelephony converts any supported buffer to µ-law at 8 kHz.
func ToTelephony(data []byte, from Format) []byte {
	return Transcode(data, from, Telephony)
}
