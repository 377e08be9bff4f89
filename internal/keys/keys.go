// Package keys translates symbolic key strings into Linux keycode strokes
// for key injection into a guest console.
//
// Plain characters are typed as-is, uppercase letters and shifted symbols
// are sent together with LEFTSHIFT. Angle brackets name special keys,
// optionally combined with "+":
//
//	"root<enter><wait>passw0rd<enter>"
//	"<ctrl+alt+delete>"
//
// Use <lt> and <gt> for literal angle brackets.
package keys

import (
	"fmt"
	"strings"
)

// Token marks a stroke that is not a key event.
type Token string

// TokenWait asks the caller to pause before the next stroke.
const TokenWait Token = "wait"

// Stroke is a single key event or a control token.
type Stroke struct {
	// Keycodes pressed together, modifiers first.
	Keycodes []uint32
	// Token is set instead of Keycodes for control strokes.
	Token Token
}

// IsToken reports whether s is a control stroke.
func (s Stroke) IsToken() bool {
	return s.Token != ""
}

// Linux keycodes from linux/input-event-codes.h.
const (
	KeyEsc        uint32 = 1
	KeyMinus      uint32 = 12
	KeyEqual      uint32 = 13
	KeyBackspace  uint32 = 14
	KeyTab        uint32 = 15
	KeyLeftBrace  uint32 = 26
	KeyRightBrace uint32 = 27
	KeyEnter      uint32 = 28
	KeyLeftCtrl   uint32 = 29
	KeySemicolon  uint32 = 39
	KeyApostrophe uint32 = 40
	KeyGrave      uint32 = 41
	KeyLeftShift  uint32 = 42
	KeyBackslash  uint32 = 43
	KeyComma      uint32 = 51
	KeyDot        uint32 = 52
	KeySlash      uint32 = 53
	KeyLeftAlt    uint32 = 56
	KeySpace      uint32 = 57
	KeyF1         uint32 = 59
	KeyF11        uint32 = 87
	KeyF12        uint32 = 88
	KeyHome       uint32 = 102
	KeyUp         uint32 = 103
	KeyPageUp     uint32 = 104
	KeyLeft       uint32 = 105
	KeyRight      uint32 = 106
	KeyEnd        uint32 = 107
	KeyDown       uint32 = 108
	KeyPageDown   uint32 = 109
	KeyInsert     uint32 = 110
	KeyDelete     uint32 = 111
)

var letterRows = []struct {
	letters string
	first   uint32
}{
	{"qwertyuiop", 16},
	{"asdfghjkl", 30},
	{"zxcvbnm", 44},
}

// plain maps unshifted characters to their keycode.
var plain = map[rune]uint32{
	'-':  KeyMinus,
	'=':  KeyEqual,
	'[':  KeyLeftBrace,
	']':  KeyRightBrace,
	';':  KeySemicolon,
	'\'': KeyApostrophe,
	'`':  KeyGrave,
	'\\': KeyBackslash,
	',':  KeyComma,
	'.':  KeyDot,
	'/':  KeySlash,
	' ':  KeySpace,
	'\t': KeyTab,
	'\n': KeyEnter,
}

// shifted maps characters typed with shift to their unshifted character.
var shifted = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'_': '-', '+': '=', '{': '[', '}': ']', ':': ';',
	'"': '\'', '~': '`', '|': '\\', '<': ',', '>': '.', '?': '/',
}

// special maps lowercase <name> keys to their keycode.
var special = map[string]uint32{
	"esc":       KeyEsc,
	"escape":    KeyEsc,
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"tab":       KeyTab,
	"bs":        KeyBackspace,
	"backspace": KeyBackspace,
	"spacebar":  KeySpace,
	"space":     KeySpace,
	"ctrl":      KeyLeftCtrl,
	"shift":     KeyLeftShift,
	"alt":       KeyLeftAlt,
	"home":      KeyHome,
	"end":       KeyEnd,
	"up":        KeyUp,
	"down":      KeyDown,
	"left":      KeyLeft,
	"right":     KeyRight,
	"pageup":    KeyPageUp,
	"pagedown":  KeyPageDown,
	"insert":    KeyInsert,
	"delete":    KeyDelete,
	"del":       KeyDelete,
	"f11":       KeyF11,
	"f12":       KeyF12,
}

func init() {
	for i := uint32(0); i < 10; i++ {
		special[fmt.Sprintf("f%d", i+1)] = KeyF1 + i
	}
	for _, row := range letterRows {
		for i, c := range row.letters {
			plain[c] = row.first + uint32(i)
		}
	}
	// 1..9 then 0 occupy 2..11.
	for i, c := range "1234567890" {
		plain[c] = 2 + uint32(i)
	}
}

// Translator converts key strings using the Linux keycode set.
// The zero value is ready to use.
type Translator struct{}

// Translate parses s into strokes in typing order.
func (Translator) Translate(s string) ([]Stroke, error) {
	var strokes []Stroke
	rest := s
	for rest != "" {
		if rest[0] == '<' {
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated key name at %q", rest)
			}
			stroke, err := named(rest[1:end])
			if err != nil {
				return nil, err
			}
			strokes = append(strokes, stroke)
			rest = rest[end+1:]
			continue
		}

		r := []rune(rest)[0]
		codes, err := char(r)
		if err != nil {
			return nil, err
		}
		strokes = append(strokes, Stroke{Keycodes: codes})
		rest = rest[len(string(r)):]
	}
	return strokes, nil
}

func named(name string) (Stroke, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "":
		return Stroke{}, fmt.Errorf("empty key name")
	case string(TokenWait):
		return Stroke{Token: TokenWait}, nil
	case "lt":
		codes, _ := char('<')
		return Stroke{Keycodes: codes}, nil
	case "gt":
		codes, _ := char('>')
		return Stroke{Keycodes: codes}, nil
	}

	var codes []uint32
	for _, part := range strings.Split(lower, "+") {
		if code, ok := special[part]; ok {
			codes = append(codes, code)
			continue
		}
		// Single characters are allowed inside combinations, e.g. <ctrl+c>.
		if r := []rune(part); len(r) == 1 {
			c, err := char(r[0])
			if err != nil {
				return Stroke{}, err
			}
			codes = append(codes, c...)
			continue
		}
		return Stroke{}, fmt.Errorf("unknown key <%s>", name)
	}
	return Stroke{Keycodes: codes}, nil
}

func char(r rune) ([]uint32, error) {
	if code, ok := plain[r]; ok {
		return []uint32{code}, nil
	}
	if r >= 'A' && r <= 'Z' {
		return []uint32{KeyLeftShift, plain[r+('a'-'A')]}, nil
	}
	if base, ok := shifted[r]; ok {
		return []uint32{KeyLeftShift, plain[base]}, nil
	}
	return nil, fmt.Errorf("no keycode for %q", r)
}
