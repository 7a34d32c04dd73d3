// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package internal holds the QUIC and TLS setup of the transport package.
package internal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the negotiated application protocol of the QUIC transport.
const ALPN = "rft-quic"

// ApplicationShutdown is sent when a Conn or Listener is closed.
const ApplicationShutdown quic.ApplicationErrorCode = 1

// ListenerTLSConfig generates a bare-bones TLS config for the listener, based on a self-signed certificate.
// The dialer will have to ignore verification issues.
func ListenerTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// DialerTLSConfig generates a bare-bones TLS config for the dialer, not verifying the listener's certificate.
func DialerTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}
}

// QUICConfig enables unreliable datagrams. Streams are not used.
func QUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:    time.Second,
		MaxIdleTimeout:     30 * time.Second,
		EnableDatagrams:    true,
		MaxIncomingStreams: -1,
	}
}
