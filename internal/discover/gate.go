package discover

import (
	"context"
	"log"
	"regexp"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/jobqueue"
)

// Gate filters resolver output and enqueues discovery jobs for remote
// endpoints worth visiting. Devices already in storage, endpoints
// rejected by the admission policy, and in-pass duplicates never reach
// the queue.
type Gate struct {
	store   Store
	queue   jobqueue.Queue
	cfg     config.DiscoverConfig
	noTypes []*regexp.Regexp
}

// NewGate creates a discovery queue gate. The platform-type deny
// patterns are compiled once here; a pattern that does not compile is
// logged and dropped rather than failing every admission check.
func NewGate(store Store, queue jobqueue.Queue, cfg config.DiscoverConfig) *Gate {
	g := &Gate{store: store, queue: queue, cfg: cfg}
	for _, pattern := range cfg.NoTypes {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			log.Printf("Bad discover.no_types pattern %q: %v", pattern, err)
			continue
		}
		g.noTypes = append(g.noTypes, re)
	}
	return g
}

// Enqueue submits discovery jobs for the peers that survive
// de-duplication and policy. It returns how many jobs were queued.
func (g *Gate) Enqueue(ctx context.Context, peers []Peer) int {
	seenIP := make(map[string]bool)
	seenID := make(map[string]bool)
	queued := 0

	for _, peer := range peers {
		if seenIP[peer.IP] {
			continue
		}
		seenIP[peer.IP] = true

		// Two addresses reporting the same identity in one pass is
		// usually transient multi-homing noise; keep the first only.
		if peer.ID != "" {
			if seenID[peer.ID] {
				log.Printf("Peer %s repeats identity %q this pass, dropped", peer.IP, peer.ID)
				continue
			}
			seenID[peer.ID] = true
		}

		known, err := g.store.GetDevice(ctx, peer.IP)
		if err != nil {
			log.Printf("Peer %s lookup failed: %v", peer.IP, err)
			continue
		}
		if known != nil {
			continue
		}

		if !g.admit(peer) {
			continue
		}

		job := domain.NewJob(domain.ActionDiscover, peer.IP)
		job.DedupKey = peer.ID
		ok, err := g.queue.Submit(ctx, job)
		if err != nil {
			log.Printf("Failed to queue discovery of %s: %v", peer.IP, err)
			continue
		}
		if !ok {
			log.Printf("Discovery of %s suppressed by job system", peer.IP)
			continue
		}
		queued++
		log.Printf("Queued discovery of %s (identity %q)", peer.IP, peer.ID)
	}

	return queued
}

// admit applies the configured admission policy by address and by
// reported platform type.
func (g *Gate) admit(peer Peer) bool {
	// ACL checks see only the address; build a bare device for them.
	candidate := domain.NewDevice(peer.IP)

	if len(g.cfg.No) > 0 && config.MatchACL(candidate, g.cfg.No) {
		log.Printf("Peer %s denied by discover.no policy", peer.IP)
		return false
	}
	if len(g.cfg.Only) > 0 && !config.MatchACL(candidate, g.cfg.Only) {
		log.Printf("Peer %s outside discover.only policy", peer.IP)
		return false
	}

	if peer.Platform != "" {
		for _, re := range g.noTypes {
			if re.MatchString(peer.Platform) {
				log.Printf("Peer %s platform %q denied by policy %q", peer.IP, peer.Platform, re)
				return false
			}
		}
	}

	return true
}
