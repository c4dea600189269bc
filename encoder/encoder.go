// Package encoder compresses raw PCM utterances for transport to remote
// transcription services.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)
