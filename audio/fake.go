package audio

import (
	"sync"
	"time"
)

const fakeChunkBytes = 960 // 30ms of 16kHz PCM16

// FakeContext is a test double that replays canned PCM chunks through a
// capture device and then feeds silence until stopped.
type FakeContext struct {
	chunks   [][]byte
	interval time.Duration
	failOpen error

	mu   sync.Mutex
	open int
}

func NewFakeContext(chunks [][]byte, interval time.Duration) *FakeContext {
	return &FakeContext{chunks: chunks, interval: interval}
}

// FailOpen makes NewCapture return err, simulating a missing or busy device.
func (f *FakeContext) FailOpen(err error) { f.failOpen = err }

// OpenCaptures reports how many capture devices are currently open, so
// tests can confirm resource release.
func (f *FakeContext) OpenCaptures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:         "fake0",
		Index:      0,
		Name:       "fake microphone",
		Channels:   Channels,
		SampleRate: SampleRate,
		IsDefault:  true,
	}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.failOpen != nil {
		return nil, f.failOpen
	}
	f.mu.Lock()
	f.open++
	f.mu.Unlock()
	return &FakeCapture{
		ctx:      f,
		chunks:   f.chunks,
		interval: f.interval,
		fedAll:   make(chan struct{}),
	}, nil
}

func (f *FakeContext) Close() {}

type FakeCapture struct {
	ctx      *FakeContext
	chunks   [][]byte
	interval time.Duration
	fedAll   chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	closed   bool
}

// FedAll closes once every canned chunk has been delivered.
func (f *FakeCapture) FedAll() <-chan struct{} { return f.fedAll }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	go func() {
		defer close(f.feedDone)
		silence := make([]byte, fakeChunkBytes)
		pos := 0
		fed := false
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(f.interval):
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb == nil {
				continue
			}
			if pos < len(f.chunks) {
				chunk := f.chunks[pos]
				pos++
				cb(chunk, uint32(len(chunk)/2))
			} else {
				if !fed {
					fed = true
					close(f.fedAll)
				}
				cb(silence, uint32(len(silence)/2))
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	closed := f.closed
	f.closed = true
	f.mu.Unlock()
	if !closed {
		f.ctx.mu.Lock()
		f.ctx.open--
		f.ctx.mu.Unlock()
	}
}
