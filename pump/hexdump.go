package pump

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789abcdef"

// HexDump renders b, located at offset within its stream, as lines covering
// 16-byte aligned windows:
//
//	00000000  30 31 32 33 34 35 36 37  38 39 61 62 63 64 65 66  |0123456789abcdef|
//
// Positions of a window outside b are left blank.
func HexDump(offset int64, b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var lines []string
	start := offset &^ 15
	end := offset + int64(len(b))
	for base := start; base < end; base += 16 {
		var hex, text strings.Builder
		for i := int64(0); i < 16; i++ {
			pos := base + i
			if i == 8 {
				hex.WriteByte(' ')
			}
			if pos < offset || pos >= end {
				hex.WriteString("   ")
				text.WriteByte(' ')
				continue
			}
			c := b[pos-offset]
			hex.WriteByte(hexDigits[c>>4])
			hex.WriteByte(hexDigits[c&0x0f])
			hex.WriteByte(' ')
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			text.WriteByte(c)
		}
		lines = append(lines, fmt.Sprintf("%08x  %s |%s|", base, hex.String(), text.String()))
	}
	return lines
}
