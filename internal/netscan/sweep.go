// Package netscan seeds the job queue by ping-sweeping configured
// ranges with nmap. It only finds hosts that answer; deciding whether
// a responsive host is worth discovering stays with the usual
// admission policy once its neighbors start reporting it.
package netscan

import (
	"context"
	"fmt"
	"log"

	"github.com/Ullaakut/nmap/v3"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/jobqueue"
)

// Sweeper runs nmap ping sweeps over the configured seed ranges and
// queues a discover job per responsive host.
type Sweeper struct {
	cfg   *config.Config
	queue jobqueue.Queue
}

// New creates a sweep runner.
func New(cfg *config.Config, queue jobqueue.Queue) *Sweeper {
	return &Sweeper{cfg: cfg, queue: queue}
}

// Run sweeps every configured range. Individual range failures are
// logged and skipped; the error return covers only a sweep that could
// not start at all.
func (s *Sweeper) Run(ctx context.Context) error {
	ranges := s.cfg.Discover.SeedScan
	if len(ranges) == 0 {
		return nil
	}

	for _, target := range ranges {
		hosts, err := s.sweepRange(ctx, target)
		if err != nil {
			log.Printf("seed sweep of %s failed: %v", target, err)
			continue
		}
		for _, ip := range hosts {
			job := domain.NewJob(domain.ActionDiscover, ip)
			queued, err := s.queue.Submit(ctx, job)
			if err != nil {
				return fmt.Errorf("queue discover for %s: %w", ip, err)
			}
			if queued {
				log.Printf("seed sweep queued discover for %s", ip)
			}
		}
	}
	return nil
}

func (s *Sweeper) sweepRange(ctx context.Context, target string) ([]string, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(target),
		nmap.WithPingScan(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("seed sweep warnings for %s: %v", target, *warnings)
	}

	var hosts []string
	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}
		var ip string
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				ip = addr.Addr
				break
			}
		}
		if ip == "" {
			ip = host.Addresses[0].Addr
		}
		hosts = append(hosts, ip)
	}
	return hosts, nil
}
