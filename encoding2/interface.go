package encoding2

import (
	"io"
)

// An interface for encoding byte values.  *bytes.Buffer and
// *strings.Builder both satisfy it.
type BinaryWriter interface {
	io.Writer
	io.ByteWriter
}
