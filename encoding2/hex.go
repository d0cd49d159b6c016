package encoding2

import (
	"fmt"
	"strings"
)

var hexMap [][]byte

// This hex encodes the binary data and writes the encoded data to the writer.
func HexEncodeToWriter(w BinaryWriter, data []byte) {
	for _, b := range data {
		_, _ = w.Write(hexMap[b])
	}
}

// HexEncodeToString returns the lower case hex encoding of data, suitable
// for the body of a hex / bytea literal.
func HexEncodeToString(data []byte) string {
	var sb strings.Builder
	sb.Grow(2 * len(data))
	HexEncodeToWriter(&sb, data)
	return sb.String()
}

func init() {
	hexMap = make([][]byte, 256)
	for x := 0; x < 256; x++ {
		hexMap[x] = []byte(fmt.Sprintf("%02x", x))
	}
}
