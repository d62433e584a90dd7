package progress

import "strconv"

// ESC starts an ANSI escape sequence.
const ESC = 0x1b

var CSI = []byte{ESC, '['}

// CUU moves the cursor up n rows.
func CUU(n int) []byte { return csi(n, 'A') }

// ED erases the display from the cursor to the end when n is 0.
func ED(n int) []byte { return csi(n, 'J') }

func csi(n int, final byte) []byte {
	seq := append([]byte(nil), CSI...)
	seq = append(seq, strconv.Itoa(n)...)
	return append(seq, final)
}
