// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webapi exposes a responder's files and transfer history over HTTP.
//
// The following endpoints are available:
//
//	GET /files                 servable files
//	GET /transfers             all recorded transfers
//	GET /transfers/{filename}  recorded transfers of one file
//	GET /ws                    WebSocket feed of server events, one JSON object per message
package webapi
