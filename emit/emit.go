// Package emit injects recognized text and key presses into the
// foreground application. Text goes through the clipboard plus a paste
// chord, which is fast and layout-independent; individual keys go
// through synthetic keyboard events.
package emit

// Emitter is the keystroke-injection capability consumed by the
// dictation pipeline.
type Emitter interface {
	// TypeText types literal text into the focused application.
	TypeText(text string) error

	// PressKey presses a key chord described by spec, e.g. "enter",
	// "ctrl+s", "shift+tab".
	PressKey(spec string) error
}
