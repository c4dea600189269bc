package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"murmur/vad"
)

// Whisper transcribes in-process with a local whisper.cpp model. The
// model is loaded on Load (session start) and released on Close so the
// memory is only held while a session is active.
type Whisper struct {
	mu        sync.Mutex
	modelPath string
	lang      string
	model     whisper.Model
}

func NewWhisper(modelPath string) *Whisper {
	return &Whisper{modelPath: modelPath}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) SetLanguage(lang string) {
	w.mu.Lock()
	w.lang = lang
	w.mu.Unlock()
}

func (w *Whisper) GetLanguage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lang
}

// Load reads the model file into memory. Idempotent.
func (w *Whisper) Load() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		return nil
	}
	model, err := whisper.New(w.modelPath)
	if err != nil {
		return fmt.Errorf("loading whisper model %s: %w", w.modelPath, err)
	}
	w.model = model
	return nil
}

// Transcribe runs the model over the utterance samples. whisper.cpp has
// no mid-call cancellation; ctx is only checked before starting.
func (w *Whisper) Transcribe(ctx context.Context, utt *vad.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return "", fmt.Errorf("whisper model not loaded")
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", err
	}

	wctx.SetTranslate(false)
	if w.lang != "" {
		if err := wctx.SetLanguage(w.lang); err != nil {
			return "", fmt.Errorf("language %q: %w", w.lang, err)
		}
	}

	if err := wctx.Process(utt.Samples(), nil, nil, nil); err != nil {
		return "", err
	}

	var result strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		result.WriteString(segment.Text)
	}

	return strings.TrimSpace(result.String()), nil
}

// Close unloads the model.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		err := w.model.Close()
		w.model = nil
		return err
	}
	return nil
}
