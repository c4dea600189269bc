// Package engine abstracts speech-to-text engines behind one synchronous
// contract: a finished utterance in, recognized text out. Engines are
// treated as black boxes by the pipeline; per-utterance errors are the
// caller's to swallow or surface.
package engine

import (
	"context"
	"fmt"

	"murmur/vad"
)

type Engine interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string

	// Transcribe converts one utterance to text. It must honor ctx where
	// the underlying engine allows cancellation; engines that cannot
	// cancel mid-call simply run to completion.
	Transcribe(ctx context.Context, utt *vad.Utterance) (string, error)

	// Close releases engine resources (models, connections).
	Close() error
}

// Loader is implemented by engines that hold heavyweight resources which
// should be acquired at session start rather than first use.
type Loader interface {
	Load() error
}

// Options selects and parameterizes an engine.
type Options struct {
	Kind      string // "whisper", "remote" or "fake"
	ModelPath string // whisper: path to a ggml model file
	URL       string // remote: transcription endpoint
	APIKey    string // remote: bearer token
	Model     string // remote: model name sent with each request
	Language  string
}

// New builds an engine from options.
func New(opts Options) (Engine, error) {
	switch opts.Kind {
	case "whisper":
		if opts.ModelPath == "" {
			return nil, fmt.Errorf("whisper engine requires a model path")
		}
		w := NewWhisper(opts.ModelPath)
		w.SetLanguage(opts.Language)
		return w, nil
	case "remote":
		if opts.URL == "" {
			return nil, fmt.Errorf("remote engine requires a URL")
		}
		r := NewRemote(opts.URL, opts.APIKey, opts.Model)
		r.SetLanguage(opts.Language)
		return r, nil
	case "fake":
		return NewFake("", nil), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", opts.Kind)
	}
}
