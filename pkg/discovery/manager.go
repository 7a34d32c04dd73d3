// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// Peer is a discovered responder.
type Peer struct {
	Host         string
	Announcement Announcement
}

// Address of the Peer's responder as "host:port".
func (p Peer) Address() string {
	return net.JoinHostPort(p.Host, strconv.FormatUint(uint64(p.Announcement.Port), 10))
}

func (p Peer) String() string {
	return fmt.Sprintf("%v://%s", p.Announcement.Transport, p.Address())
}

// Manager publishes Announcements and reports received ones.
type Manager struct {
	Node   string
	Notify func(Peer)

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager for Announcements will be created and started. The optional notify function is called for each
// Announcement from another node.
func NewManager(
	node string, notify func(Peer),
	announcements []Announcement, announcementInterval time.Duration,
	ipv4, ipv6 bool) (*Manager, error) {

	var manager = &Manager{
		Node:   node,
		Notify: notify,
	}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval":      announcementInterval,
		"IPv4":          ipv4,
		"IPv6":          ipv6,
		"announcements": announcements,
	}).Info("Starting discovery Manager")

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		set := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            announcementInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           manager.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(set)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return manager, nil
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	peers, err := parseDiscovered(discovered)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"discovery": manager,
			"peer":      discovered.Address,
		}).Warn("Peer discovery failed to parse incoming package")

		return
	}

	for _, peer := range peers {
		if peer.Announcement.Node == manager.Node {
			continue
		}

		log.WithFields(log.Fields{
			"discovery": manager,
			"peer":      peer,
		}).Debug("Peer discovery received an announcement")

		if manager.Notify != nil {
			manager.Notify(peer)
		}
	}
}

// parseDiscovered into Peers, one for each Announcement.
func parseDiscovered(discovered peerdiscovery.Discovered) (peers []Peer, err error) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		return
	}

	for _, announcement := range announcements {
		peers = append(peers, Peer{Host: discovered.Address, Announcement: announcement})
	}
	return
}

// Close this Manager.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}

func (manager *Manager) String() string {
	return fmt.Sprintf("discovery(%s)", manager.Node)
}

// Discover listens for announced responders within the given timeout. IPv6 uses the link-local multicast group.
func Discover(timeout time.Duration, ipv6 bool) (peers []Peer, err error) {
	settings := peerdiscovery.Settings{
		Limit:            -1,
		Port:             fmt.Sprintf("%d", port),
		MulticastAddress: address4,
		Payload:          []byte{0x80},
		Delay:            timeout / 4,
		TimeLimit:        timeout,
		AllowSelf:        true,
		IPVersion:        peerdiscovery.IPv4,
	}
	if ipv6 {
		settings.MulticastAddress = address6
		settings.IPVersion = peerdiscovery.IPv6
	}

	discovered, err := peerdiscovery.Discover(settings)
	if err != nil {
		return
	}

	for _, d := range discovered {
		dPeers, pErr := parseDiscovered(d)
		if pErr != nil {
			log.WithError(pErr).WithField("peer", d.Address).Debug("Ignoring unparsable discovery package")
			continue
		}
		peers = append(peers, dPeers...)
	}

	log.WithFields(log.Fields{
		"timeout": timeout,
		"peers":   peers,
	}).Debug("Discovery finished")
	return
}
