// Package hotkey watches the global keyboard for the configured capture
// combination.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Combo is a parsed hotkey: every key must be down at once.
type Combo struct {
	text string
	keys []key
}

type key struct {
	name     string
	rawcodes []uint16
}

func (c Combo) String() string { return c.text }

// Parse turns "Ctrl+Alt+C" into a Combo. Unknown key names are an error
// rather than a silently dead hotkey.
func Parse(s string) (Combo, error) {
	names := parseHotkey(s)
	if len(names) == 0 {
		return Combo{}, fmt.Errorf("empty hotkey")
	}
	c := Combo{text: s}
	for _, n := range names {
		codes := keyNameToRawcodes(n)
		if len(codes) == 0 {
			return Combo{}, fmt.Errorf("unknown key %q in hotkey %q", n, s)
		}
		c.keys = append(c.keys, key{name: n, rawcodes: codes})
	}
	return c, nil
}

// Listen starts the global hook and invokes fn each time the combo is
// completed. It returns once the hook is running; the hook stops with ctx.
func Listen(ctx context.Context, combo string, fn func()) error {
	c, err := Parse(combo)
	if err != nil {
		return err
	}
	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("keyboard hook unavailable")
	}
	log.Printf("Hotkey listener configured for: %s", c)

	m := newMatcher(c)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				gohook.End()
				return
			case ev, ok := <-evChan:
				if !ok {
					log.Printf("Hotkey: event channel closed")
					return
				}
				if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp {
					continue
				}
				if m.Feed(ev.Kind == gohook.KeyDown, ev.Rawcode) {
					log.Printf("Hotkey: %s activated", c)
					if fn != nil {
						fn()
					}
				}
			}
		}
	}()
	return nil
}

// matcher tracks which combo keys are held.
type matcher struct {
	mu      sync.Mutex
	combo   Combo
	pressed []bool
}

func newMatcher(c Combo) *matcher {
	return &matcher{combo: c, pressed: make([]bool, len(c.keys))}
}

// Feed records a key transition and reports whether the combo just
// completed. Held keys are released from tracking on activation so a held
// combo fires once.
func (m *matcher) Feed(down bool, rawcode uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range m.combo.keys {
		for _, rc := range k.rawcodes {
			if rc == rawcode {
				m.pressed[i] = down
			}
		}
	}
	if !down {
		return false
	}
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	for i := range m.pressed {
		m.pressed[i] = false
	}
	return true
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+c" to normalized key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "win", "cmd", "super", "meta":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}

// keyNameToRawcodes maps a key name to Windows virtual key codes, both
// sides for modifiers.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))

	if len(keyName) == 1 {
		ch := keyName[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16('A' + ch - 'a')} // VK 0x41-0x5A
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch)} // VK 0x30-0x39
		}
	}
	if len(keyName) >= 2 && keyName[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(keyName[1:], "%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprint(n) == keyName[1:] {
			return []uint16{uint16(111 + n)} // VK_F1 = 112
		}
	}

	switch keyName {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "cmd":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	case "space":
		return []uint16{32}
	case "enter", "return":
		return []uint16{13}
	case "esc", "escape":
		return []uint16{27}
	case "tab":
		return []uint16{9}
	case "backspace":
		return []uint16{8}
	case "delete", "del":
		return []uint16{46}
	case "insert", "ins":
		return []uint16{45}
	case "home":
		return []uint16{36}
	case "end":
		return []uint16{35}
	case "pageup", "pgup":
		return []uint16{33}
	case "pagedown", "pgdn":
		return []uint16{34}
	case "printscreen", "prtsc":
		return []uint16{44} // VK_SNAPSHOT
	case "left":
		return []uint16{37}
	case "up":
		return []uint16{38}
	case "right":
		return []uint16{39}
	case "down":
		return []uint16{40}
	default:
		return nil
	}
}
