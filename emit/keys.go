package emit

import (
	"fmt"
	"strings"

	"github.com/micmonay/keybd_event"
)

// Chord is a parsed key spec: one base key plus modifier flags.
type Chord struct {
	Key   int
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
}

var namedKeys = map[string]int{
	"enter":    keybd_event.VK_ENTER,
	"return":   keybd_event.VK_ENTER,
	"tab":      keybd_event.VK_TAB,
	"space":    keybd_event.VK_SPACE,
	"esc":      keybd_event.VK_ESC,
	"escape":   keybd_event.VK_ESC,
	"delete":   keybd_event.VK_DELETE,
	"up":       keybd_event.VK_UP,
	"down":     keybd_event.VK_DOWN,
	"left":     keybd_event.VK_LEFT,
	"right":    keybd_event.VK_RIGHT,
	"home":     keybd_event.VK_HOME,
	"end":      keybd_event.VK_END,
	"pageup":   keybd_event.VK_PAGEUP,
	"pagedown": keybd_event.VK_PAGEDOWN,
	"f1":       keybd_event.VK_F1,
	"f2":       keybd_event.VK_F2,
	"f3":       keybd_event.VK_F3,
	"f4":       keybd_event.VK_F4,
	"f5":       keybd_event.VK_F5,
	"f6":       keybd_event.VK_F6,
	"f7":       keybd_event.VK_F7,
	"f8":       keybd_event.VK_F8,
	"f9":       keybd_event.VK_F9,
	"f10":      keybd_event.VK_F10,
	"f11":      keybd_event.VK_F11,
	"f12":      keybd_event.VK_F12,
	"a":        keybd_event.VK_A,
	"b":        keybd_event.VK_B,
	"c":        keybd_event.VK_C,
	"d":        keybd_event.VK_D,
	"e":        keybd_event.VK_E,
	"f":        keybd_event.VK_F,
	"g":        keybd_event.VK_G,
	"h":        keybd_event.VK_H,
	"i":        keybd_event.VK_I,
	"j":        keybd_event.VK_J,
	"k":        keybd_event.VK_K,
	"l":        keybd_event.VK_L,
	"m":        keybd_event.VK_M,
	"n":        keybd_event.VK_N,
	"o":        keybd_event.VK_O,
	"p":        keybd_event.VK_P,
	"q":        keybd_event.VK_Q,
	"r":        keybd_event.VK_R,
	"s":        keybd_event.VK_S,
	"t":        keybd_event.VK_T,
	"u":        keybd_event.VK_U,
	"v":        keybd_event.VK_V,
	"w":        keybd_event.VK_W,
	"x":        keybd_event.VK_X,
	"y":        keybd_event.VK_Y,
	"z":        keybd_event.VK_Z,
	"0":        keybd_event.VK_0,
	"1":        keybd_event.VK_1,
	"2":        keybd_event.VK_2,
	"3":        keybd_event.VK_3,
	"4":        keybd_event.VK_4,
	"5":        keybd_event.VK_5,
	"6":        keybd_event.VK_6,
	"7":        keybd_event.VK_7,
	"8":        keybd_event.VK_8,
	"9":        keybd_event.VK_9,
}

// ParseChord parses a "+"-separated key spec like "ctrl+shift+s" or
// "enter". Modifiers may appear in any order; exactly one base key is
// required.
func ParseChord(spec string) (Chord, error) {
	var c Chord
	haveKey := false
	for _, part := range strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			return Chord{}, fmt.Errorf("empty key in spec %q", spec)
		case "ctrl", "control":
			c.Ctrl = true
		case "alt":
			c.Alt = true
		case "shift":
			c.Shift = true
		case "super", "cmd", "meta", "win":
			c.Super = true
		default:
			vk, ok := namedKeys[part]
			if !ok {
				return Chord{}, fmt.Errorf("unknown key %q in spec %q", part, spec)
			}
			if haveKey {
				return Chord{}, fmt.Errorf("multiple base keys in spec %q", spec)
			}
			c.Key = vk
			haveKey = true
		}
	}
	if !haveKey {
		return Chord{}, fmt.Errorf("no base key in spec %q", spec)
	}
	return c, nil
}
