package kzgparams

import (
	"encoding/binary"
	"io"
)

// Little-endian fixed-width helpers, grounded on the read/write helpers
// in the teacher's common/util.go (WriteUint32/ReadUint32).

func writeUint32(w io.Writer, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	_, err := w.Write(tmp[:])
	return err
}

func readUint32(r io.Reader, v *uint32) error {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return err
	}
	*v = binary.LittleEndian.Uint32(tmp[:])
	return nil
}
