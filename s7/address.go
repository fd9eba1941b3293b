package s7

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Regular expressions for parsing memory address strings into Areas.
var (
	// Typed DB addresses with an explicit data-type name: DB1.10:DWORD,
	// DB1.0:WORD[4] for an array of 4 words.
	reDBTyped = regexp.MustCompile(`^DB(\d+)\.(\d+):([A-Z0-9]+)(?:\[(\d+)\])?$`)

	// Full-letter DB addresses: DB1.DBX0.0 (bit), DB1.DBB0 (byte),
	// DB1.DBW0 (word), DB1.DBD0 (dword), DB1.DBL0 (8 bytes).
	reDB = regexp.MustCompile(`^DB(\d+)\.DB([XBWDL])(\d+)(?:\.(\d))?$`)

	// Process image / merker / V-memory addresses: M0.0 (bit), MB0 (byte),
	// MW0 (word), MD0 (dword), ML0 (8 bytes). I, Q and V follow the same
	// shape.
	reIQMV = regexp.MustCompile(`^([IQMV])([XBWDL])?(\d+)(?:\.(\d))?$`)
)

// ParseAddress parses a memory address string into an Area ready to pass to
// Session.Read/WriteBytes/WriteBit. Supported formats:
//
//	DB1.DBX0.0     - data block bit
//	DB1.DBB0       - data block byte
//	DB1.DBW0       - data block word
//	DB1.DBD0       - data block dword
//	DB1.10:DWORD   - data block, type name instead of a letter
//	DB1.10:WORD[4] - data block, typed array
//	M0.0, MB0, MW0, MD0 - merker
//	I0.0, IB0, IW0, ID0 - process image input
//	Q0.0, QB0, QW0, QD0 - process image output
//	V0.0, VB0, VW0, VD0 - legacy S7-200 V memory (DB1)
func ParseAddress(addr string) (Area, error) {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	if addr == "" {
		return nil, fmt.Errorf("s7: empty address")
	}

	if m := reDBTyped.FindStringSubmatch(addr); m != nil {
		return parseDBTypedAddress(m)
	}
	if m := reDB.FindStringSubmatch(addr); m != nil {
		return parseDBAddress(m)
	}
	if m := reIQMV.FindStringSubmatch(addr); m != nil {
		return parseIQMVAddress(m)
	}
	return nil, fmt.Errorf("s7: invalid address format: %s", addr)
}

func parseDBTypedAddress(m []string) (Area, error) {
	dbNum, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[2])

	dt, ok := ParseDataType(m[3])
	if !ok {
		return nil, fmt.Errorf("s7: unknown data type: %s", m[3])
	}
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("s7: type %s has no fixed wire size", m[3])
	}
	count := 1
	if m[4] != "" {
		count, _ = strconv.Atoi(m[4])
		if count < 1 {
			count = 1
		}
	}
	return DataBausteine{DBNumber: uint16(dbNum), Selector: Byte(uint16(offset), uint16(size*count))}, nil
}

func parseDBAddress(m []string) (Area, error) {
	dbNum, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[3])

	if m[2] == "X" && m[4] == "" {
		return nil, fmt.Errorf("s7: DBX requires a bit number (e.g. DB1.DBX0.0)")
	}
	sel, err := selectorFromTypeLetter(m[2], offset, m[4])
	if err != nil {
		return nil, err
	}
	return DataBausteine{DBNumber: uint16(dbNum), Selector: sel}, nil
}

func parseIQMVAddress(m []string) (Area, error) {
	typeLetter := m[2]
	if typeLetter == "" {
		typeLetter = "X"
	}
	offset, _ := strconv.Atoi(m[3])

	sel, err := selectorFromTypeLetter(typeLetter, offset, m[4])
	if err != nil {
		return nil, err
	}

	switch m[1] {
	case "I":
		return ProcessInput{Selector: sel}, nil
	case "Q":
		return ProcessOutput{Selector: sel}, nil
	case "M":
		return Merker{Selector: sel}, nil
	case "V":
		return V{Selector: sel}, nil
	default:
		return nil, fmt.Errorf("s7: unknown area letter: %s", m[1])
	}
}

// selectorFromTypeLetter maps one of the X/B/W/D/L type letters (bit, byte,
// word, dword, 8-byte) to a DataSelector at offset, reading bitStr only for
// the bit form.
func selectorFromTypeLetter(letter string, offset int, bitStr string) (DataSelector, error) {
	switch letter {
	case "X":
		bitNum := 0
		if bitStr != "" {
			bitNum, _ = strconv.Atoi(bitStr)
		}
		if bitNum < 0 || bitNum > 7 {
			return DataSelector{}, &InvalidBitAddrError{Value: bitNum}
		}
		return Bit(uint16(offset), byte(bitNum)), nil
	case "B":
		return Byte(uint16(offset), 1), nil
	case "W":
		return Byte(uint16(offset), 2), nil
	case "D":
		return Byte(uint16(offset), 4), nil
	case "L":
		return Byte(uint16(offset), 8), nil
	default:
		return DataSelector{}, fmt.Errorf("s7: unknown type letter: %s", letter)
	}
}

// ValidateAddress reports whether addr parses successfully.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}
