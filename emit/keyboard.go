package emit

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// typeSettle is how long we wait after a paste chord before restoring
// the previous clipboard contents. The chord is asynchronous on every
// platform; restoring too early pastes the old clipboard.
const typeSettle = 80 * time.Millisecond

// Keyboard injects text via clipboard-paste and keys via synthetic
// keyboard events.
type Keyboard struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

func NewKeyboard() (*Keyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keyboard binding: %w", err)
	}
	return &Keyboard{kb: kb}, nil
}

// TypeText copies the text to the clipboard, sends the platform paste
// chord, and restores the previous clipboard contents.
func (k *Keyboard) TypeText(text string) error {
	if text == "" {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	previous, prevErr := cb.ReadAll()
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}

	if err := k.pasteChord(); err != nil {
		return err
	}

	if prevErr == nil {
		time.Sleep(typeSettle)
		cb.WriteAll(previous)
	}
	return nil
}

func (k *Keyboard) pasteChord() error {
	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		k.kb.HasSuper(true) // Cmd+V on macOS
	} else {
		k.kb.HasCTRL(true)
	}
	return k.kb.Launching()
}

// PressKey parses the spec and fires the chord.
func (k *Keyboard) PressKey(spec string) error {
	chord, err := ParseChord(spec)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.SetKeys(chord.Key)
	k.kb.HasCTRL(chord.Ctrl)
	k.kb.HasALT(chord.Alt)
	k.kb.HasSHIFT(chord.Shift)
	k.kb.HasSuper(chord.Super)
	return k.kb.Launching()
}
