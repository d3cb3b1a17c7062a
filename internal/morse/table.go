package morse

// Timing in dot-times between elements, letters and words.
const (
	IntraLetterGap = 1
	InterLetterGap = 3
	InterWordGap   = 7
)

var letterCodes = [26]Code{
	{1, 3},       // A .-
	{3, 1, 1, 1}, // B -...
	{3, 1, 3, 1}, // C -.-.
	{3, 1, 1},    // D -..
	{1},          // E .
	{1, 1, 3, 1}, // F ..-.
	{3, 3, 1},    // G --.
	{1, 1, 1, 1}, // H ....
	{1, 1},       // I ..
	{1, 3, 3, 3}, // J .---
	{3, 1, 3},    // K -.-
	{1, 3, 1, 1}, // L .-..
	{3, 3},       // M --
	{3, 1},       // N -.
	{3, 3, 3},    // O ---
	{1, 3, 3, 1}, // P .--.
	{3, 3, 1, 3}, // Q --.-
	{1, 3, 1},    // R .-.
	{1, 1, 1},    // S ...
	{3},          // T -
	{1, 1, 3},    // U ..-
	{1, 1, 1, 3}, // V ...-
	{1, 3, 3},    // W .--
	{3, 1, 1, 3}, // X -..-
	{3, 1, 3, 3}, // Y -.--
	{3, 3, 1, 1}, // Z --..
}

// IsLetter reports whether ch is an ASCII Latin letter.
func IsLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

// Lookup returns the code for an ASCII letter, case-insensitively. The
// returned slice is a copy; the table itself is never exposed for writing.
func Lookup(ch byte) (Code, bool) {
	var idx int
	switch {
	case 'a' <= ch && ch <= 'z':
		idx = int(ch - 'a')
	case 'A' <= ch && ch <= 'Z':
		idx = int(ch - 'A')
	default:
		return nil, false
	}
	code := letterCodes[idx]
	out := make(Code, len(code))
	copy(out, code)
	return out, true
}

// LookupPattern returns the 16-bit pattern for an ASCII letter.
func LookupPattern(ch byte) (Pattern, bool) {
	code, ok := Lookup(ch)
	if !ok {
		return 0, false
	}
	p, err := code.Pattern()
	if err != nil {
		return 0, false
	}
	return p, true
}
