package services

import (
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
)

// linkTable owns every peer link of one meeting. Like the Router it is only
// ever touched by the meeting loop, so it carries no lock.
type linkTable struct {
	links            map[domain.LinkKey]*domain.PeerLink
	handshakeTimeout time.Duration
	metrics          ports.Metrics
}

func newLinkTable(handshakeTimeout time.Duration, metrics ports.Metrics) *linkTable {
	return &linkTable{
		links:            make(map[domain.LinkKey]*domain.PeerLink),
		handshakeTimeout: handshakeTimeout,
		metrics:          metrics,
	}
}

// createForJoin spins up one idle link per existing participant, always
// initiated by the newcomer so offers never collide.
func (t *linkTable) createForJoin(newcomer domain.ConnID, existing []domain.ConnID, now time.Time) []*domain.PeerLink {
	created := make([]*domain.PeerLink, 0, len(existing))
	for _, peer := range existing {
		key := domain.NewLinkKey(newcomer, peer)
		if _, ok := t.links[key]; ok {
			// Invariant: at most one link per unordered pair. A
			// surviving entry means cleanup was skipped somewhere.
			continue
		}
		link := domain.NewPeerLink(newcomer, peer, now)
		t.links[key] = link
		t.metrics.LinkOpened()
		created = append(created, link)
	}
	return created
}

func (t *linkTable) get(a, b domain.ConnID) (*domain.PeerLink, bool) {
	link, ok := t.links[domain.NewLinkKey(a, b)]
	return link, ok
}

func (t *linkTable) deadline(now time.Time) time.Time {
	return now.Add(t.handshakeTimeout)
}

// closeFor tears down every link touching id and returns them so the caller
// can notify the surviving ends.
func (t *linkTable) closeFor(id domain.ConnID) []*domain.PeerLink {
	var closed []*domain.PeerLink
	for key, link := range t.links {
		if !key.Contains(id) {
			continue
		}
		link.Close()
		delete(t.links, key)
		t.metrics.LinkClosed(domain.LinkClosed)
		closed = append(closed, link)
	}
	return closed
}

// expire closes every link whose handshake outlived the reply window.
func (t *linkTable) expire(now time.Time) []*domain.PeerLink {
	var expired []*domain.PeerLink
	for key, link := range t.links {
		if !link.Expired(now) {
			continue
		}
		link.Close()
		delete(t.links, key)
		t.metrics.LinkClosed(domain.LinkClosed)
		expired = append(expired, link)
	}
	return expired
}

func (t *linkTable) count() int {
	return len(t.links)
}
