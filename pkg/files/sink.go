// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package files

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/howeyc/crc16"
	"github.com/ulikunitz/xz"
)

// Sink is the requester's output file. It counts and fingerprints the received stream.
type Sink struct {
	file *os.File
	out  io.Writer

	pw   *io.PipeWriter
	done chan error

	hash  crc16.Hash16
	bytes uint64
}

// Create the output file at the given path, truncating an existing one. If decompress is set, the received stream
// is xz decompressed before being written.
func Create(path string, decompress bool) (s *Sink, err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}

	s = &Sink{
		file: f,
		out:  f,
		hash: crc16.New(crc16table),
	}

	if decompress {
		pr, pw := io.Pipe()
		s.out = pw
		s.pw = pw
		s.done = make(chan error, 1)

		go func() {
			xzr, xzErr := xz.NewReader(pr)
			if xzErr == nil {
				_, xzErr = io.Copy(f, xzr)
			}

			_ = pr.CloseWithError(xzErr)
			s.done <- xzErr
		}()
	}

	return
}

func (s *Sink) Write(p []byte) (n int, err error) {
	n, err = s.out.Write(p)
	_, _ = s.hash.Write(p[:n])
	s.bytes += uint64(n)
	return
}

// Close the output file. For a decompressing Sink, errors of a truncated or invalid stream are reported.
func (s *Sink) Close() (err error) {
	if s.pw != nil {
		_ = s.pw.Close()
		if xzErr := <-s.done; xzErr != nil {
			err = multierror.Append(err, xzErr)
		}
	}

	if fErr := s.file.Close(); fErr != nil {
		err = multierror.Append(err, fErr)
	}
	return
}

// Bytes received, before decompression.
func (s *Sink) Bytes() uint64 {
	return s.bytes
}

// Fingerprint of the received stream, before decompression.
func (s *Sink) Fingerprint() Fingerprint {
	return Fingerprint(s.hash.Sum16())
}

// Name of the output file.
func (s *Sink) Name() string {
	return s.file.Name()
}
