// Package audio converts between telephony-native G.711 audio and linear
// PCM16, and frames clips for storage. Telephony streams carry 8kHz mu-law;
// model endpoints and stored artifacts want linear PCM.
package audio

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// DecodeMuLawSample expands one G.711 mu-law byte to a linear PCM16 sample.
func DecodeMuLawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := (int16(mantissa)<<3 + muLawBias) << exponent
	sample -= muLawBias

	if sign != 0 {
		return -sample
	}
	return sample
}

// EncodeMuLawSample compresses one linear PCM16 sample to a G.711 mu-law byte.
func EncodeMuLawSample(s int16) byte {
	var sign byte
	if s < 0 {
		if s == -32768 {
			s = -32767
		}
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int16(0x4000); mask != 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte(s>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw expands G.711 mu-law bytes to PCM16 little-endian bytes.
func DecodeMuLaw(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i, u := range data {
		s := DecodeMuLawSample(u)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeMuLaw compresses PCM16 little-endian bytes to G.711 mu-law bytes.
// Trailing odd bytes are dropped.
func EncodeMuLaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = EncodeMuLawSample(s)
	}
	return out
}
