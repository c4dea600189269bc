// Package vad segments a stream of audio frames into utterances using
// energy-based voice activity detection. A Detector is fed fixed-duration
// frames and returns a finished Utterance whenever enough trailing silence
// accumulates behind speech.
package vad

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultEnergyThreshold = 0.002
	DefaultSilenceDuration = 1 * time.Second
	DefaultMinUtterance    = 300 * time.Millisecond
	DefaultFrameDuration   = 30 * time.Millisecond
	DefaultMaxUtterance    = 30 * time.Second
)

// Config tunes the detector. It is supplied once at backend construction
// and never mutated afterwards.
type Config struct {
	EnergyThreshold float64       // normalized RMS above which a frame counts as speech
	SilenceDuration time.Duration // trailing silence that closes an utterance
	MinUtterance    time.Duration // shorter utterances are discarded as noise bursts
	FrameDuration   time.Duration // fixed duration of each frame
	MaxUtterance    time.Duration // safety cap; longer speech is force-closed
}

func DefaultConfig() Config {
	return Config{
		EnergyThreshold: DefaultEnergyThreshold,
		SilenceDuration: DefaultSilenceDuration,
		MinUtterance:    DefaultMinUtterance,
		FrameDuration:   DefaultFrameDuration,
		MaxUtterance:    DefaultMaxUtterance,
	}
}

func (c Config) Validate() error {
	if c.EnergyThreshold <= 0 || c.EnergyThreshold > 1 {
		return fmt.Errorf("energy threshold %v out of range (0,1]", c.EnergyThreshold)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %v", c.FrameDuration)
	}
	if c.SilenceDuration < c.FrameDuration {
		return fmt.Errorf("silence duration %v shorter than one frame (%v)", c.SilenceDuration, c.FrameDuration)
	}
	if c.MaxUtterance > 0 && c.MaxUtterance < c.MinUtterance {
		return fmt.Errorf("max utterance %v shorter than min utterance %v", c.MaxUtterance, c.MinUtterance)
	}
	return nil
}

// Frame is one fixed-duration block of normalized mono samples with its
// RMS energy computed at capture time.
type Frame struct {
	Samples []float32
	Time    time.Time
	Energy  float64
}

// NewFrame wraps samples into a Frame, computing the RMS energy.
func NewFrame(samples []float32, ts time.Time) Frame {
	return Frame{Samples: samples, Time: ts, Energy: RMS(samples)}
}

// RMS returns the root-mean-square energy of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Utterance is one continuous speech segment, immutable once the detector
// closes it.
type Utterance struct {
	frames   []Frame
	duration time.Duration
	closed   bool
}

func (u *Utterance) append(f Frame, d time.Duration) {
	u.frames = append(u.frames, f)
	u.duration += d
}

// Duration is the total audio length of the utterance.
func (u *Utterance) Duration() time.Duration { return u.duration }

// Frames is the number of frames in the utterance.
func (u *Utterance) Frames() int { return len(u.frames) }

// Start is the capture timestamp of the first frame.
func (u *Utterance) Start() time.Time {
	if len(u.frames) == 0 {
		return time.Time{}
	}
	return u.frames[0].Time
}

// Samples concatenates all frames into one sample slice for the engine.
func (u *Utterance) Samples() []float32 {
	n := 0
	for _, f := range u.frames {
		n += len(f.Samples)
	}
	out := make([]float32, 0, n)
	for _, f := range u.frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Detector is the utterance segmentation state machine. Its only mutable
// state is the in-speech flag, the open utterance, and the silence run;
// Reset clears all of it so a detector can be reused across sessions.
// Not safe for concurrent use; the pipeline worker owns it.
type Detector struct {
	cfg       Config
	inSpeech  bool
	silence   time.Duration
	current   *Utterance
	discarded int
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// ProcessFrame advances the state machine by one frame. It returns a
// finished utterance of at least MinUtterance length, or nil. Utterances
// that close below MinUtterance are counted and dropped.
func (d *Detector) ProcessFrame(f Frame) *Utterance {
	if !d.inSpeech {
		if f.Energy <= d.cfg.EnergyThreshold {
			return nil
		}
		d.inSpeech = true
		d.silence = 0
		d.current = &Utterance{}
		d.current.append(f, d.cfg.FrameDuration)
		return nil
	}

	// In speech: always append, even below threshold, so word tails are
	// not truncated.
	d.current.append(f, d.cfg.FrameDuration)

	if f.Energy <= d.cfg.EnergyThreshold {
		d.silence += d.cfg.FrameDuration
		if d.silence >= d.cfg.SilenceDuration {
			return d.close()
		}
	} else {
		d.silence = 0
	}

	// Bound transcription latency and memory on very long speech.
	if d.cfg.MaxUtterance > 0 && d.current.duration >= d.cfg.MaxUtterance {
		return d.close()
	}

	return nil
}

func (d *Detector) close() *Utterance {
	utt := d.current
	utt.closed = true
	d.current = nil
	d.inSpeech = false
	d.silence = 0
	if utt.duration < d.cfg.MinUtterance {
		d.discarded++
		return nil
	}
	return utt
}

// InSpeech reports whether an utterance is currently open.
func (d *Detector) InSpeech() bool { return d.inSpeech }

// Discarded is the number of closed utterances dropped for being shorter
// than MinUtterance.
func (d *Detector) Discarded() int { return d.discarded }

// Reset discards any open utterance and returns the detector to its
// initial state. Used on session teardown; an utterance in progress at
// cancellation is dropped, not transcribed.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.silence = 0
	d.current = nil
	d.discarded = 0
}
