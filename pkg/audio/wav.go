package audio

import (
	"bytes"
	"encoding/binary"
)

// Telephony streams are 8kHz mono; realtime model endpoints use 24kHz PCM16.
const (
	TelephonyRate = 8000
	ModelRate     = 24000
)

// WAVFromPCM16 wraps raw PCM16 little-endian samples in a WAV container.
func WAVFromPCM16(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVFromMuLaw expands G.711 mu-law bytes and wraps them in an 8kHz PCM16 WAV.
// This is the storage format for telephony clips.
func WAVFromMuLaw(mulaw []byte) []byte {
	return WAVFromPCM16(DecodeMuLaw(mulaw), TelephonyRate)
}

// MuLawToModelPCM converts telephony mu-law audio to PCM16 at the model
// endpoint's sample rate. Only needed when the endpoint is configured for
// linear PCM instead of G.711 passthrough.
func MuLawToModelPCM(mulaw []byte) []byte {
	pcm := DecodeMuLaw(mulaw)
	return ResampleBytes(pcm, TelephonyRate, ModelRate)
}

// ModelPCMToMuLaw converts model-rate PCM16 back to telephony mu-law.
func ModelPCMToMuLaw(pcm []byte) []byte {
	narrow := ResampleBytes(pcm, ModelRate, TelephonyRate)
	return EncodeMuLaw(narrow)
}
