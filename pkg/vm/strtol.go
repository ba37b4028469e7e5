package vm

// parseInteger converts text the way the language's Val procedure does:
// optional leading blanks, an optional sign, then a decimal number or one
// of the radix forms 0x/$ (hex), 0b/% (binary), & or a leading 0 (octal).
// The whole text must be consumed. code is 0 on success, otherwise the
// 1-based position of the character where conversion stopped. Values
// outside [lo, hi] stop at the digit that overflowed. Text with no digits
// stops where the number should begin, at its sign or radix prefix.
func parseInteger(text []byte, lo, hi int64) (value int64, code int) {
	i := 0
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	subject := i
	neg := false
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}

	base := int64(10)
	leadingZero := false
	switch {
	case i < len(text) && text[i] == '$':
		base = 16
		i++
	case i < len(text) && text[i] == '%':
		base = 2
		i++
	case i < len(text) && text[i] == '&':
		base = 8
		i++
	case i+1 < len(text) && text[i] == '0' && (text[i+1] == 'x' || text[i+1] == 'X'):
		base = 16
		i += 2
	case i+1 < len(text) && text[i] == '0' && (text[i+1] == 'b' || text[i+1] == 'B'):
		base = 2
		i += 2
	case i < len(text) && text[i] == '0':
		base = 8
		leadingZero = true
	}

	start := i
	var mag int64
	for ; i < len(text); i++ {
		d := digitValue(text[i])
		if d >= base {
			break
		}
		mag = mag*base + d
		if (!neg && mag > hi) || (neg && -mag < lo) {
			return 0, i + 1
		}
	}
	if i == start && !leadingZero {
		return 0, subject + 1
	}
	if i < len(text) {
		return 0, i + 1
	}
	if neg {
		mag = -mag
	}
	return mag, 0
}

func digitValue(c byte) int64 {
	switch {
	case c >= '0' && c <= '9':
		return int64(c - '0')
	case c >= 'a' && c <= 'f':
		return int64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int64(c-'A') + 10
	}
	return 99
}
