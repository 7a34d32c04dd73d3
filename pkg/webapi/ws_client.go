// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package webapi

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// wsClient is a single WebSocket connection of the event feed.
type wsClient struct {
	conn       *websocket.Conn
	outChan    chan EventMessage
	unregister func(*wsClient)

	closeOnce sync.Once
	closeSyn  chan struct{}
}

func newWsClient(conn *websocket.Conn, unregister func(*wsClient)) *wsClient {
	return &wsClient{
		conn:       conn,
		outChan:    make(chan EventMessage, 32),
		unregister: unregister,
		closeSyn:   make(chan struct{}),
	}
}

func (client *wsClient) start() {
	go client.handleWriter()
	go client.handleReader()
}

// handleReader only consumes control frames; the feed is one-directional.
func (client *wsClient) handleReader() {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			log.WithError(err).WithField("client", client.conn.RemoteAddr()).Debug("WebSocket client disconnected")
			client.close()
			return
		}
	}
}

func (client *wsClient) handleWriter() {
	for {
		select {
		case <-client.closeSyn:
			return

		case msg := <-client.outChan:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteJSON(msg); err != nil {
				log.WithError(err).WithField("client", client.conn.RemoteAddr()).Warn("Writing to WebSocket errored")
				client.close()
				return
			}
		}
	}
}

// send a message without blocking; it is dropped if the client's queue is full.
func (client *wsClient) send(msg EventMessage) {
	select {
	case client.outChan <- msg:
	default:
		log.WithField("client", client.conn.RemoteAddr()).Debug("Dropping event for slow WebSocket client")
	}
}

func (client *wsClient) close() {
	client.closeOnce.Do(func() {
		close(client.closeSyn)
		client.unregister(client)
		_ = client.conn.Close()
	})
}
