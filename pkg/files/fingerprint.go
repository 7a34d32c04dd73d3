// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package files

import (
	"fmt"
	"io"

	"github.com/howeyc/crc16"
)

var crc16table = crc16.MakeTable(crc16.CCITT)

// Fingerprint is the CRC-16/CCITT of a file's content. It identifies delivered data for operators and is not used
// to detect corrupted packets.
type Fingerprint uint16

// NewFingerprint of a byte slice.
func NewFingerprint(data []byte) Fingerprint {
	return Fingerprint(crc16.Checksum(data, crc16table))
}

// ReadFingerprint of a reader's whole content.
func ReadFingerprint(r io.Reader) (fp Fingerprint, err error) {
	h := crc16.New(crc16table)
	if _, err = io.Copy(h, r); err != nil {
		return
	}

	fp = Fingerprint(h.Sum16())
	return
}

func (fp Fingerprint) String() string {
	return fmt.Sprintf("%04x", uint16(fp))
}
