// Package hotkey delivers the global dictation toggle. The default
// binding is Ctrl+Shift+Space.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	// Toggled fires once per press.
	Toggled() <-chan struct{}
}
