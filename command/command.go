// Package command routes recognized voice commands. If the leading token
// of a transcription matches a configured keyword, the mapped action is
// dispatched instead of typing the literal text.
package command

import (
	"fmt"
	"strings"

	"murmur/emit"
	"murmur/log"
)

type ActionKind int

const (
	// KeyPress fires a key chord (e.g. "enter", "ctrl+s").
	KeyPress ActionKind = iota
	// TypeText types a fixed replacement string.
	TypeText
)

type Action struct {
	Kind  ActionKind
	Value string
}

// Command binds a spoken keyword to an action. Keywords are single
// words, matched case-insensitively.
type Command struct {
	Keyword string
	Action  Action
}

// Router matches transcriptions against the keyword set and dispatches
// through the emitter. Stateless after construction; safe for use from
// the single pipeline worker.
type Router struct {
	commands map[string]Action
	emitter  emit.Emitter
}

func NewRouter(commands []Command, emitter emit.Emitter) (*Router, error) {
	set := make(map[string]Action, len(commands))
	for _, c := range commands {
		kw := strings.ToLower(strings.TrimSpace(c.Keyword))
		if kw == "" {
			return nil, fmt.Errorf("empty command keyword")
		}
		if strings.ContainsAny(kw, " \t") {
			return nil, fmt.Errorf("command keyword %q must be a single word", c.Keyword)
		}
		if _, dup := set[kw]; dup {
			return nil, fmt.Errorf("duplicate command keyword %q", kw)
		}
		if c.Action.Kind == KeyPress {
			if _, err := emit.ParseChord(c.Action.Value); err != nil {
				return nil, fmt.Errorf("command %q: %w", kw, err)
			}
		}
		set[kw] = c.Action
	}
	return &Router{commands: set, emitter: emitter}, nil
}

// leadingToken extracts the first word of the transcription, lowercased
// and stripped of the punctuation recognition engines like to append.
func leadingToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(fields[0], ".,!?;:"))
}

// Dispatch routes one transcription: a keyword match fires its action,
// anything else is typed verbatim.
func (r *Router) Dispatch(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if action, ok := r.commands[leadingToken(text)]; ok {
		log.Infof("voice command: %q", leadingToken(text))
		switch action.Kind {
		case KeyPress:
			return r.emitter.PressKey(action.Value)
		case TypeText:
			return r.emitter.TypeText(action.Value)
		}
		return fmt.Errorf("unknown action kind %d", action.Kind)
	}

	return r.emitter.TypeText(text)
}
