// Package checksum provides the CRC32 integrity checks used by the SD
// transfer protocol. The same checksum is applied at chunk and whole-file
// granularity, on both the dump and write directions.
package checksum

import (
	"fmt"
	"hash/crc32"
	"strconv"
)

var table = crc32.MakeTable(crc32.IEEE)

// CRC32 computes the IEEE CRC32 of data. The device firmware computes the
// same polynomial, so equality against a device-declared value is the sole
// integrity oracle for transfers.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, table)
}

// Hex renders a checksum as the fixed-width uppercase hex used on the wire.
func Hex(sum uint32) string {
	return fmt.Sprintf("%08X", sum)
}

// ParseHex parses a wire-format hex checksum. Case-insensitive; the device
// emits uppercase but older firmware revisions emitted lowercase.
func ParseHex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid crc %q: %w", s, err)
	}
	return uint32(v), nil
}
