package vad

import (
	"encoding/binary"
	"time"
)

// Framer slices arbitrarily sized PCM16 capture chunks into fixed-duration
// frames of normalized float32 samples. Partial frames are buffered until
// the next chunk arrives.
type Framer struct {
	frameSamples int
	buf          []float32
	odd          byte // low byte of a sample split across chunks
	hasOdd       bool
}

func NewFramer(sampleRate int, frameDuration time.Duration) *Framer {
	n := int(float64(sampleRate) * frameDuration.Seconds())
	if n < 1 {
		n = 1
	}
	return &Framer{frameSamples: n}
}

// FrameSamples is the number of samples per frame.
func (fr *Framer) FrameSamples() int { return fr.frameSamples }

// Push converts little-endian PCM16 bytes and returns any complete frames.
// ts is the capture timestamp of the chunk; it is applied to every frame
// cut from it.
func (fr *Framer) Push(pcm []byte, ts time.Time) []Frame {
	if fr.hasOdd && len(pcm) > 0 {
		s := int16(uint16(fr.odd) | uint16(pcm[0])<<8)
		fr.buf = append(fr.buf, float32(s)/32768.0)
		pcm = pcm[1:]
		fr.hasOdd = false
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		fr.buf = append(fr.buf, float32(s)/32768.0)
	}
	if len(pcm)%2 == 1 {
		fr.odd = pcm[len(pcm)-1]
		fr.hasOdd = true
	}

	var frames []Frame
	for len(fr.buf) >= fr.frameSamples {
		samples := make([]float32, fr.frameSamples)
		copy(samples, fr.buf[:fr.frameSamples])
		fr.buf = fr.buf[fr.frameSamples:]
		frames = append(frames, NewFrame(samples, ts))
	}
	return frames
}

// Reset drops any buffered partial frame.
func (fr *Framer) Reset() {
	fr.buf = fr.buf[:0]
	fr.hasOdd = false
}
