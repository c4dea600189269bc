package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/command"
	"murmur/emit"
	"murmur/engine"
	"murmur/log"
	"murmur/vad"
)

const defaultQueueSize = 64 // frames; ~2s of audio at 30ms frames

// StreamingConfig parameterizes the in-process pipeline.
type StreamingConfig struct {
	VAD         vad.Config
	DeviceIndex int // negative = system default
	QueueSize   int
	StopTimeout time.Duration
}

// StreamingBackend runs the capture -> VAD -> transcription -> emission
// pipeline on one background worker. Capture pushes frames onto a
// bounded queue; when transcription falls behind, the oldest frames are
// dropped so capture never blocks.
type StreamingBackend struct {
	cfg      StreamingConfig
	audioCtx audio.Context
	eng      engine.Engine
	router   *command.Router
	emitter  emit.Emitter

	st      *status
	dropped atomic.Uint64

	// opMu serializes Start and Stop so a Stop arriving mid-Start
	// waits for the start to settle and then tears it down. State
	// reads never take it.
	opMu sync.Mutex

	mu   sync.Mutex
	sess *streamSession
}

// streamSession holds per-session resources. release is idempotent and
// runs on every exit path, including worker panics.
type streamSession struct {
	b       *StreamingBackend
	cancel  context.CancelFunc
	capture audio.CaptureDevice
	worker  chan struct{}
	once    sync.Once
}

func (s *streamSession) release() {
	s.once.Do(func() {
		s.capture.ClearCallback()
		s.capture.Stop()
		s.capture.Close()
		if err := s.b.eng.Close(); err != nil {
			log.Errorf("closing engine: %v", err)
		}
	})
}

// NewStreaming builds a streaming backend. router may be nil, in which
// case transcriptions are always typed verbatim.
func NewStreaming(cfg StreamingConfig, audioCtx audio.Context, eng engine.Engine, router *command.Router, emitter emit.Emitter) *StreamingBackend {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &StreamingBackend{
		cfg:      cfg,
		audioCtx: audioCtx,
		eng:      eng,
		router:   router,
		emitter:  emitter,
		st:       newStatus(),
	}
}

func (b *StreamingBackend) State() State          { s, _ := b.st.get(); return s }
func (b *StreamingBackend) Reason() string        { _, r := b.st.get(); return r }
func (b *StreamingBackend) Done() <-chan struct{} { return b.st.doneCh() }

func (b *StreamingBackend) IsAlive() bool {
	s, _ := b.st.get()
	return s == Active
}

// Dropped reports how many frames the bounded queue has discarded.
func (b *StreamingBackend) Dropped() uint64 { return b.dropped.Load() }

// Start loads the engine, opens the capture device and launches the
// pipeline worker. It returns once the audio stream is confirmed open.
func (b *StreamingBackend) Start(language, model string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if err := b.st.begin(); err != nil {
		return err
	}

	if err := b.cfg.VAD.Validate(); err != nil {
		b.st.settle(Failed, err.Error())
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	b.eng.SetLanguage(language)
	if loader, ok := b.eng.(engine.Loader); ok {
		if err := loader.Load(); err != nil {
			reason := fmt.Sprintf("loading %s engine: %v", b.eng.Name(), err)
			b.st.settle(Failed, reason)
			return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
		}
	}

	device, err := audio.SelectDevice(b.audioCtx, b.cfg.DeviceIndex)
	if err != nil {
		b.st.settle(Failed, err.Error())
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if device != nil && audio.IsBluetooth(device.Name) {
		log.Warnf("capture device %q looks like a Bluetooth headset; expect reduced quality", device.Name)
	}

	capture, err := b.audioCtx.NewCapture(device, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		b.st.settle(Failed, err.Error())
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	frames := make(chan vad.Frame, b.cfg.QueueSize)
	framer := vad.NewFramer(audio.SampleRate, b.cfg.VAD.FrameDuration)
	capture.SetCallback(func(data []byte, _ uint32) {
		for _, f := range framer.Push(data, time.Now()) {
			select {
			case frames <- f:
			default:
				// Queue full: drop the oldest frame, keep the newest.
				select {
				case <-frames:
					if n := b.dropped.Add(1); n == 1 || n%64 == 0 {
						log.FramesDropped(n)
					}
				default:
				}
				select {
				case frames <- f:
				default:
				}
			}
		}
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		b.st.settle(Failed, err.Error())
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &streamSession{
		b:       b,
		cancel:  cancel,
		capture: capture,
		worker:  make(chan struct{}),
	}
	b.mu.Lock()
	b.sess = sess
	b.mu.Unlock()

	go func() {
		defer close(sess.worker)
		defer func() {
			if r := recover(); r != nil {
				reason := fmt.Sprintf("%v: pipeline worker panic: %v", ErrCrashed, r)
				sess.release()
				if b.st.failIfActive(reason) {
					log.Error(reason)
				}
			}
		}()
		b.run(ctx, frames)
	}()

	if !b.st.activate() {
		// The worker already settled the session, e.g. via a panic.
		_, reason := b.st.get()
		sess.cancel()
		sess.release()
		b.mu.Lock()
		if b.sess == sess {
			b.sess = nil
		}
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
	}
	log.Infof("streaming backend active: engine %s, language %s, model %s", b.eng.Name(), language, model)
	return nil
}

// run is the pipeline worker: pull frames from the queue, feed the
// detector, transcribe finished utterances and emit the text. An
// utterance in progress at cancellation is discarded.
func (b *StreamingBackend) run(ctx context.Context, frames <-chan vad.Frame) {
	det := vad.NewDetector(b.cfg.VAD)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			utt := det.ProcessFrame(f)
			if utt == nil {
				continue
			}
			b.transcribe(ctx, utt)
		}
	}
}

func (b *StreamingBackend) transcribe(ctx context.Context, utt *vad.Utterance) {
	began := time.Now()
	text, err := b.eng.Transcribe(ctx, utt)
	if err != nil {
		// Per-utterance failures are backend-local: log and move on.
		log.Errorf("transcribing %.2fs utterance: %v", utt.Duration().Seconds(), err)
		return
	}
	text = strings.TrimSpace(text)
	log.Utterance(utt.Duration().Seconds(), float64(time.Since(began).Milliseconds()), len(text))
	if text == "" {
		return
	}
	log.TranscriptionText(text)

	if b.router != nil {
		err = b.router.Dispatch(text)
	} else {
		err = b.emitter.TypeText(text)
	}
	if err != nil {
		log.Errorf("emitting text: %v", err)
	}
}

// Stop cancels the pipeline and waits for the worker, bounded by
// StopTimeout: an in-flight transcription gets that long to return,
// then teardown proceeds regardless. Resources are released on every
// path and the backend resolves to Idle. Stop during a concurrent
// Start blocks until the start settles, then tears the session down.
func (b *StreamingBackend) Stop() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	switch s, _ := b.st.get(); s {
	case Idle, Stopping:
		return nil
	case Failed:
		b.st.settle(Idle, "")
		return nil
	}
	b.st.set(Stopping)

	b.mu.Lock()
	sess := b.sess
	b.sess = nil
	b.mu.Unlock()
	if sess == nil {
		b.st.settle(Idle, "")
		return nil
	}

	sess.capture.Stop()
	sess.cancel()

	var err error
	select {
	case <-sess.worker:
	case <-time.After(b.cfg.StopTimeout):
		log.Warnf("pipeline worker did not stop within %s", b.cfg.StopTimeout)
		err = ErrStopTimeout
	}

	sess.release()
	if n := b.dropped.Load(); n > 0 {
		log.FramesDropped(n)
	}
	b.st.settle(Idle, "")
	return err
}
