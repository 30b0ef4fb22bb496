package audio

import (
	"bytes"
	"testing"
)

func TestMuLawSilence(t *testing.T) {
	// Zero encodes to 0xFF and decodes back to zero.
	if got := EncodeMuLawSample(0); got != 0xFF {
		t.Errorf("EncodeMuLawSample(0) = %#x, want 0xff", got)
	}
	if got := DecodeMuLawSample(0xFF); got != 0 {
		t.Errorf("DecodeMuLawSample(0xff) = %d, want 0", got)
	}
}

func TestMuLawRoundTrip(t *testing.T) {
	// G.711 is lossy; a round trip should stay within the segment's
	// quantization step of the original sample.
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 32000, -32000, 32767, -32768}

	for _, s := range samples {
		got := DecodeMuLawSample(EncodeMuLawSample(s))
		diff := int32(got) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		// Max quantization error in the top segment is 1024/2 + bias slack.
		if diff > 900 {
			t.Errorf("round trip of %d gave %d (error %d)", s, got, diff)
		}
	}
}

func TestMuLawMonotonic(t *testing.T) {
	// Decoded magnitudes must increase with input magnitude.
	prev := int16(-1)
	for s := int16(0); s < 32000; s += 500 {
		got := DecodeMuLawSample(EncodeMuLawSample(s))
		if got < prev {
			t.Fatalf("decode not monotonic at %d: %d < %d", s, got, prev)
		}
		prev = got
	}
}

func TestDecodeEncodeBuffers(t *testing.T) {
	mulaw := []byte{0xFF, 0x7F, 0x00, 0x80, 0xA3}
	pcm := DecodeMuLaw(mulaw)
	if len(pcm) != len(mulaw)*2 {
		t.Fatalf("decoded length = %d, want %d", len(pcm), len(mulaw)*2)
	}
	back := EncodeMuLaw(pcm)
	if !bytes.Equal(back, mulaw) {
		t.Errorf("re-encode = %v, want %v", back, mulaw)
	}
}

func TestWAVFromPCM16(t *testing.T) {
	pcm := make([]byte, 320)
	wav := WAVFromPCM16(pcm, TelephonyRate)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	// Sample rate field at offset 24.
	rate := uint32(wav[24]) | uint32(wav[25])<<8 | uint32(wav[26])<<16 | uint32(wav[27])<<24
	if rate != TelephonyRate {
		t.Errorf("sample rate = %d, want %d", rate, TelephonyRate)
	}
}

func TestResampleRates(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		inLen    int
		wantLen  int
	}{
		{"same rate", 8000, 8000, 80, 80},
		{"upsample 8k to 24k", 8000, 24000, 80, 240},
		{"downsample 24k to 8k", 24000, 8000, 240, 80},
		{"empty", 8000, 24000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]int16, tt.inLen)
			for i := range in {
				in[i] = int16(i * 10)
			}
			out := Resample(in, tt.from, tt.to)
			if len(out) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(out), tt.wantLen)
			}
		})
	}
}

func TestMuLawToModelPCM(t *testing.T) {
	mulaw := make([]byte, 160) // 20ms at 8kHz
	pcm := MuLawToModelPCM(mulaw)
	// 160 samples upsampled 3x, 2 bytes each.
	if len(pcm) != 160*3*2 {
		t.Errorf("model PCM length = %d, want %d", len(pcm), 160*3*2)
	}
}
