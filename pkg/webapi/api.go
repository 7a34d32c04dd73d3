// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package webapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rft-go/pkg/files"
	"github.com/dtn7/rft-go/pkg/rft"
	"github.com/dtn7/rft-go/pkg/storage"
)

// FileLister lists servable files, e.g., a files.Catalog.
type FileLister interface {
	List() []files.FileInfo
}

// TransferQuerier queries recorded transfers, e.g., a storage.Store.
type TransferQuerier interface {
	QueryAll() ([]storage.TransferItem, error)
	QueryFilename(filename string) ([]storage.TransferItem, error)
}

// API is the HTTP interface of a responder daemon.
type API struct {
	router    *mux.Router
	files     FileLister
	transfers TransferQuerier

	upgrader websocket.Upgrader

	clientsMutex sync.Mutex
	clients      map[*wsClient]struct{}
}

// NewAPI registers its routes on the given router. A nil TransferQuerier disables the transfer endpoints.
func NewAPI(router *mux.Router, fileLister FileLister, transfers TransferQuerier) (api *API) {
	api = &API{
		router:    router,
		files:     fileLister,
		transfers: transfers,
		upgrader:  websocket.Upgrader{},
		clients:   make(map[*wsClient]struct{}),
	}

	api.router.HandleFunc("/files", api.handleFiles).Methods(http.MethodGet)
	api.router.HandleFunc("/transfers", api.handleTransfers).Methods(http.MethodGet)
	api.router.HandleFunc("/transfers/{filename:.+}", api.handleTransfers).Methods(http.MethodGet)
	api.router.HandleFunc("/ws", api.handleWebSocket).Methods(http.MethodGet)

	return api
}

// ServeHTTP is a http.Handler to be bound to a HTTP server.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write HTTP response")
	}
}

// handleFiles processes /files GET requests.
func (api *API) handleFiles(w http.ResponseWriter, _ *http.Request) {
	infos := api.files.List()
	if infos == nil {
		infos = []files.FileInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleTransfers processes /transfers and /transfers/{filename} GET requests.
func (api *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if api.transfers == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "transfer history is disabled"})
		return
	}

	var (
		tis []storage.TransferItem
		err error
	)
	if filename, ok := mux.Vars(r)["filename"]; ok {
		tis, err = api.transfers.QueryFilename(filename)
	} else {
		tis, err = api.transfers.QueryAll()
	}

	if err != nil {
		log.WithError(err).WithField("request", r.URL).Warn("Querying transfers errored")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if tis == nil {
		tis = []storage.TransferItem{}
	}
	writeJSON(w, http.StatusOK, tis)
}

// handleWebSocket upgrades /ws requests and registers a new event feed client.
func (api *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, connErr := api.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	client := newWsClient(conn, api.unregister)

	api.clientsMutex.Lock()
	api.clients[client] = struct{}{}
	api.clientsMutex.Unlock()

	log.WithField("client", conn.RemoteAddr()).Debug("WebSocket client connected")

	client.start()
}

func (api *API) unregister(client *wsClient) {
	api.clientsMutex.Lock()
	delete(api.clients, client)
	api.clientsMutex.Unlock()
}

// Publish an rft.Event to all WebSocket clients. Slow clients miss events instead of blocking the caller.
func (api *API) Publish(e rft.Event) {
	msg := NewEventMessage(e)

	api.clientsMutex.Lock()
	defer api.clientsMutex.Unlock()

	for client := range api.clients {
		client.send(msg)
	}
}

// Clients returns the amount of connected WebSocket clients.
func (api *API) Clients() int {
	api.clientsMutex.Lock()
	defer api.clientsMutex.Unlock()

	return len(api.clients)
}

// Close all WebSocket connections.
func (api *API) Close() {
	api.clientsMutex.Lock()
	clients := make([]*wsClient, 0, len(api.clients))
	for client := range api.clients {
		clients = append(clients, client)
	}
	api.clientsMutex.Unlock()

	for _, client := range clients {
		client.close()
	}
}
