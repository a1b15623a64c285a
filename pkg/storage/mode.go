package storage

// Mode is an fopen-style open mode.
//
//	r   read only, file must exist
//	w   write only, truncate or create
//	a   write only, append, create
//	x   write only, exclusive create
//	c   write only, create, no truncation
//
// The "+" variants add the opposite direction. Backends without native
// random access emulate every "+" mode with a WriteBackFile.
type Mode string

const (
	ModeRead            Mode = "r"
	ModeWrite           Mode = "w"
	ModeAppend          Mode = "a"
	ModeExclusive       Mode = "x"
	ModeCreate          Mode = "c"
	ModeReadWrite       Mode = "r+"
	ModeWriteRead       Mode = "w+"
	ModeAppendRead      Mode = "a+"
	ModeExclusiveRead   Mode = "x+"
	ModeCreateReadWrite Mode = "c+"
)

var knownModes = map[Mode]struct{}{
	ModeRead: {}, ModeWrite: {}, ModeAppend: {}, ModeExclusive: {}, ModeCreate: {},
	ModeReadWrite: {}, ModeWriteRead: {}, ModeAppendRead: {}, ModeExclusiveRead: {},
	ModeCreateReadWrite: {},
}

// ParseMode validates s. The binary flag "b" is accepted and dropped.
func ParseMode(s string) (Mode, error) {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 'b' || s[i] == 't' {
			continue
		}
		clean = append(clean, s[i])
	}

	m := Mode(clean)
	if _, ok := knownModes[m]; !ok {
		return "", Errorf("fopen", "", ErrUnsupportedMode, "mode %q", s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := knownModes[m]
	return ok
}

// Base returns the mode letter without "+".
func (m Mode) Base() byte {
	if len(m) == 0 {
		return 0
	}
	return m[0]
}

// Plus reports whether m is a combined read/write mode.
func (m Mode) Plus() bool {
	return len(m) == 2 && m[1] == '+'
}

// Readable reports whether reads are allowed.
func (m Mode) Readable() bool {
	return m.Base() == 'r' || m.Plus()
}

// Writable reports whether writes are allowed.
func (m Mode) Writable() bool {
	return m.Base() != 'r' || m.Plus()
}

// Truncates reports whether opening discards existing content.
func (m Mode) Truncates() bool {
	return m.Base() == 'w'
}

// Appends reports whether writes start at the end of existing content.
func (m Mode) Appends() bool {
	return m.Base() == 'a'
}

// Exclusive reports whether the path must not exist yet.
func (m Mode) Exclusive() bool {
	return m.Base() == 'x'
}

// MustExist reports whether opening fails on a missing path.
func (m Mode) MustExist() bool {
	return m.Base() == 'r'
}
