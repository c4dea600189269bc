package emit

import "sync"

// Fake records emitted text and key presses for tests.
type Fake struct {
	mu    sync.Mutex
	typed []string
	keys  []string
	err   error
}

func NewFake() *Fake { return &Fake{} }

// Fail makes every emit call return err.
func (f *Fake) Fail(err error) { f.err = err }

func (f *Fake) TypeText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.typed = append(f.typed, text)
	return nil
}

func (f *Fake) PressKey(spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, spec)
	return nil
}

func (f *Fake) Typed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.typed))
	copy(out, f.typed)
	return out
}

func (f *Fake) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}
