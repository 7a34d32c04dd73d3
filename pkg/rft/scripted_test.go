// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"bytes"
	"sync"
	"time"
)

type scriptTimeout struct{}

func (scriptTimeout) Error() string { return "scripted timeout" }
func (scriptTimeout) Timeout() bool { return true }

// scriptedEndpoint replays a fixed list of datagrams. A nil entry, as well as an exhausted script, results in a
// timeout. The optional react function may append further datagrams for each sent one.
type scriptedEndpoint struct {
	mutex    sync.Mutex
	incoming [][]byte
	sent     [][]byte
	react    func(sent []byte) [][]byte
	delay    time.Duration
}

func newScriptedEndpoint(packets ...Packet) *scriptedEndpoint {
	se := &scriptedEndpoint{}
	for _, p := range packets {
		se.push(p)
	}
	return se
}

func (se *scriptedEndpoint) push(p Packet) {
	se.incoming = append(se.incoming, p.Bytes())
}

func (se *scriptedEndpoint) pushTimeout() {
	se.incoming = append(se.incoming, nil)
}

func (se *scriptedEndpoint) Send(datagram []byte) error {
	se.mutex.Lock()
	defer se.mutex.Unlock()

	se.sent = append(se.sent, append([]byte(nil), datagram...))
	if se.react != nil {
		se.incoming = append(se.incoming, se.react(datagram)...)
	}
	return nil
}

func (se *scriptedEndpoint) Receive(buf []byte) (int, error) {
	if se.delay > 0 {
		time.Sleep(se.delay)
	}

	se.mutex.Lock()
	defer se.mutex.Unlock()

	if len(se.incoming) == 0 {
		return 0, scriptTimeout{}
	}

	d := se.incoming[0]
	se.incoming = se.incoming[1:]
	if d == nil {
		return 0, scriptTimeout{}
	}
	return copy(buf, d), nil
}

func (se *scriptedEndpoint) SetTimeout(time.Duration) error {
	return nil
}

// controls returns the sequence numbers of all sent control Packets. Requests are reported as -1.
func (se *scriptedEndpoint) controls() (seqs []int64) {
	se.mutex.Lock()
	defer se.mutex.Unlock()

	for _, d := range se.sent {
		if !IsControlDatagram(d) {
			seqs = append(seqs, -1)
			continue
		}
		p, _ := ParsePacket(d)
		seqs = append(seqs, int64(p.SequenceNumber))
	}
	return
}

// recordingWriter keeps each Write call as a separate chunk.
type recordingWriter struct {
	chunks [][]byte
}

func (rw *recordingWriter) Write(p []byte) (int, error) {
	rw.chunks = append(rw.chunks, append([]byte(nil), p...))
	return len(p), nil
}

func (rw *recordingWriter) Bytes() []byte {
	return bytes.Join(rw.chunks, nil)
}

// segments of distinguishable payloads.
func segments(n int) (payloads [][]byte) {
	for i := 0; i < n; i++ {
		payloads = append(payloads, bytes.Repeat([]byte{byte('a' + i)}, 4+i))
	}
	return
}
