package engine

import (
	"context"
	"sync"
	"time"

	"murmur/vad"
)

// Fake is a test engine that returns canned text. It records every
// utterance it receives and can simulate slow or failing transcription.
type Fake struct {
	mu    sync.Mutex
	texts []string // returned in order; last one repeats
	err   error
	delay time.Duration
	lang  string
	calls []*vad.Utterance
}

func NewFake(text string, err error) *Fake {
	f := &Fake{err: err}
	if text != "" {
		f.texts = []string{text}
	}
	return f
}

// NewFakeScript returns texts one per call, repeating the last.
func NewFakeScript(texts ...string) *Fake {
	return &Fake{texts: texts}
}

// SetDelay makes each Transcribe block for d (or until ctx cancels).
func (f *Fake) SetDelay(d time.Duration) { f.delay = d }

func (f *Fake) Name() string            { return "fake" }
func (f *Fake) SetLanguage(lang string) { f.mu.Lock(); f.lang = lang; f.mu.Unlock() }

func (f *Fake) GetLanguage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lang
}

func (f *Fake) Transcribe(ctx context.Context, utt *vad.Utterance) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, utt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	i := len(f.calls) - 1
	if i >= len(f.texts) {
		i = len(f.texts) - 1
	}
	return f.texts[i], nil
}

// Calls returns the utterances transcribed so far.
func (f *Fake) Calls() []*vad.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*vad.Utterance, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Close() error { return nil }
