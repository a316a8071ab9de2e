package luma

// CodeLength is the number of digits in a Luma verification code.
const CodeLength = 6

// Pad is the six-slot verification code entry. It is a value; every
// operation returns the next pad.
type Pad struct {
	slots [CodeLength]byte
	focus int
}

// PadFrom lays the digits of code into a pad, one per slot.
func PadFrom(code string) Pad {
	var p Pad
	n := 0
	for i := 0; i < len(code) && n < CodeLength; i++ {
		if isDigit(code[i]) {
			p.slots[n] = code[i]
			n++
		}
	}
	p.focus = min(n, CodeLength-1)
	return p
}

// Input writes into slot index the first digit of value, or clears the slot
// when value has none. Focus advances after a digit.
func (p Pad) Input(index int, value string) Pad {
	if index < 0 || index >= CodeLength {
		return p
	}
	var digit byte
	for i := 0; i < len(value); i++ {
		if isDigit(value[i]) {
			digit = value[i]
			break
		}
	}
	p.slots[index] = digit
	p.focus = index
	if digit != 0 && index < CodeLength-1 {
		p.focus = index + 1
	}
	return p
}

// Backspace handles a backspace key in slot index. A filled slot is cleared;
// on an empty slot focus moves to the previous one.
func (p Pad) Backspace(index int) Pad {
	if index < 0 || index >= CodeLength {
		return p
	}
	if p.slots[index] != 0 {
		p.slots[index] = 0
		p.focus = index
		return p
	}
	if index > 0 {
		p.focus = index - 1
	}
	return p
}

// Paste replaces the whole pad with the digits of text.
func (p Pad) Paste(text string) Pad {
	return PadFrom(text)
}

// Code returns the filled slots in order.
func (p Pad) Code() string {
	b := make([]byte, 0, CodeLength)
	for _, d := range p.slots {
		if d != 0 {
			b = append(b, d)
		}
	}
	return string(b)
}

// Complete reports whether every slot holds a digit.
func (p Pad) Complete() bool {
	for _, d := range p.slots {
		if d == 0 {
			return false
		}
	}
	return true
}

// Focus returns the focused slot.
func (p Pad) Focus() int { return p.focus }

// Slots returns each slot as a string, "" for empty slots.
func (p Pad) Slots() []string {
	out := make([]string, CodeLength)
	for i, d := range p.slots {
		if d != 0 {
			out[i] = string(rune(d))
		}
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
