// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/howeyc/crc16"
)

// Extension data is a sequence of type-length-value items, each with a one byte type and a one byte length.
const (
	// ExtChecksum is the extension type of a CRC-16/CCITT over the payload.
	ExtChecksum uint8 = 0x01

	// ChecksumExtLen is the number of extension bytes needed for a checksum.
	ChecksumExtLen = 4
)

// ErrChecksum is returned by VerifyChecksum for a corrupted payload.
var ErrChecksum = errors.New("payload checksum mismatch")

var crc16table *crc16.Table

func init() {
	crc16table = crc16.MakeTable(crc16.CCITT)
}

// ChecksumExtension creates the extension data carrying the payload's checksum.
func ChecksumExtension(payload []byte) []byte {
	ext := make([]byte, ChecksumExtLen)
	ext[0] = ExtChecksum
	ext[1] = 2
	binary.BigEndian.PutUint16(ext[2:], crc16.Checksum(payload, crc16table))
	return ext
}

// extensionItem returns the value of the first extension item of the requested type.
func (p Packet) extensionItem(extType uint8) (value []byte, ok bool, err error) {
	ext := p.Extension
	for len(ext) > 0 {
		if len(ext) < 2 || len(ext) < 2+int(ext[1]) {
			err = fmt.Errorf("extension item of type %d is truncated", ext[0])
			return
		}

		if ext[0] == extType {
			value, ok = ext[2:2+int(ext[1])], true
			return
		}
		ext = ext[2+int(ext[1]):]
	}
	return
}

// VerifyChecksum of the payload against the checksum extension. Packets without a checksum are always valid.
func (p Packet) VerifyChecksum() error {
	value, ok, err := p.extensionItem(ExtChecksum)
	if err != nil {
		return err
	} else if !ok {
		return nil
	} else if len(value) != 2 {
		return fmt.Errorf("checksum extension has %d bytes instead of 2", len(value))
	}

	if expected, got := binary.BigEndian.Uint16(value), crc16.Checksum(p.Payload, crc16table); expected != got {
		return fmt.Errorf("%w: expected %04x, got %04x", ErrChecksum, expected, got)
	}
	return nil
}
