// Package discover implements the discover action: fetching a device
// snapshot, storing device and interface inventory, applying manual
// topology, resolving neighbors, and queueing newly seen devices.
package discover

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/jobqueue"
	"github.com/pilyon3/netdisco/internal/snapshot"
	"github.com/pilyon3/netdisco/internal/worker"
)

// Discoverer owns the workers of the discover action and the snapshot
// fetched for the job in flight. Snapshots are cached per job ID so
// the phases of one job share a single transport pass while parallel
// jobs stay independent.
type Discoverer struct {
	store    Store
	queue    jobqueue.Queue
	cfg      *config.Config
	readers  []snapshot.Reader
	applier  *Applier
	resolver *Resolver
	gate     *Gate

	mu    sync.Mutex
	snaps map[string]*jobSnapshot // job ID -> snapshot
}

// jobSnapshot pairs the fetched tables with the device's uptime as it
// was stored before this pass, which wrap correction compares against.
type jobSnapshot struct {
	snap       *snapshot.Snapshot
	prevUptime uint32
}

// NewDiscoverer wires the discovery engine together. Readers are tried
// in order by the snapshot workers, one worker per transport driver.
func NewDiscoverer(store Store, queue jobqueue.Queue, cfg *config.Config, readers ...snapshot.Reader) *Discoverer {
	return &Discoverer{
		store:    store,
		queue:    queue,
		cfg:      cfg,
		readers:  readers,
		applier:  NewApplier(store),
		resolver: NewResolver(store, cfg.Discover),
		gate:     NewGate(store, queue, cfg.Discover),
		snaps:    make(map[string]*jobSnapshot),
	}
}

// Register installs the discover and expire workers.
func (d *Discoverer) Register(reg *worker.Registry) error {
	for _, rd := range d.readers {
		rd := rd
		name := fmt.Sprintf("discover.snapshot.%s", rd.Driver())
		err := reg.Register(name, worker.Spec{
			Action:  domain.ActionDiscover,
			Phase:   worker.PhaseEarly,
			Driver:  rd.Driver(),
			Primary: true,
		}, func(ctx context.Context, job *domain.Job, dev *domain.Device) worker.Status {
			return d.fetchSnapshot(ctx, job, dev, rd)
		})
		if err != nil {
			return err
		}
	}

	if err := reg.Register("discover.properties", worker.Spec{
		Action:  domain.ActionDiscover,
		Phase:   worker.PhaseMain,
		Primary: true,
	}, d.storeProperties); err != nil {
		return err
	}

	if err := reg.Register("discover.interfaces", worker.Spec{
		Action: domain.ActionDiscover,
		Phase:  worker.PhaseMain,
	}, d.storeInterfaces); err != nil {
		return err
	}

	if err := reg.Register("discover.neighbors", worker.Spec{
		Action:  domain.ActionDiscover,
		Phase:   worker.PhaseLate,
		Primary: true,
	}, d.resolveTopology); err != nil {
		return err
	}

	return reg.Register("expire.devices", worker.Spec{
		Action:  domain.ActionExpire,
		Phase:   worker.PhaseMain,
		Primary: true,
	}, d.expireDevices)
}

// fetchSnapshot runs one transport reader and caches the result for
// the job's later phases. A reader failure defers the whole job; when
// another driver already fetched the snapshot this worker is a noop.
func (d *Discoverer) fetchSnapshot(ctx context.Context, job *domain.Job, dev *domain.Device, rd snapshot.Reader) worker.Status {
	d.mu.Lock()
	_, have := d.snaps[job.ID]
	d.mu.Unlock()
	if have {
		return worker.Noop("snapshot already fetched")
	}

	snap, err := rd.Read(ctx, dev)
	if err != nil {
		return worker.Defer("transport %s: %v", rd.Driver(), err)
	}

	d.mu.Lock()
	d.snaps[job.ID] = &jobSnapshot{snap: snap, prevUptime: dev.Uptime}
	d.mu.Unlock()
	return worker.Done("snapshot via %s", rd.Driver())
}

func (d *Discoverer) takeSnapshot(jobID string) *jobSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snaps[jobID]
}

func (d *Discoverer) dropSnapshot(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.snaps, jobID)
}

// ReleaseJob drops any snapshot still cached for a job. The late phase
// releases it on the normal path; whoever completes a job must call
// this too, so a job that stops in an earlier phase cannot pin its
// snapshot for the life of the process.
func (d *Discoverer) ReleaseJob(jobID string) {
	d.dropSnapshot(jobID)
}

func (d *Discoverer) cachedSnapshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snaps)
}

// storeProperties creates or refreshes the device row from the
// snapshot.
func (d *Discoverer) storeProperties(ctx context.Context, job *domain.Job, dev *domain.Device) worker.Status {
	js := d.takeSnapshot(job.ID)
	if js == nil {
		return worker.Defer("no snapshot for %s", job.Target)
	}
	snap := js.snap

	now := time.Now()
	dev.DNS = snap.DNS
	dev.Name = snap.Name
	dev.Vendor = snap.Vendor
	dev.Model = snap.Model
	dev.OS = snap.OS
	dev.Serial = snap.Serial
	dev.MAC = snap.MAC
	dev.Uptime = snap.Uptime
	dev.LastDiscover = &now

	if err := d.store.UpsertDevice(ctx, dev); err != nil {
		return worker.Errored("store device %s: %v", dev.IP, err)
	}
	return worker.Done("device %s stored", dev.IP)
}

// storeInterfaces refreshes the device's port table, correcting
// last-change readings across uptime counter wraps. Runs as a
// secondary worker: interface inventory must not fail the main phase.
func (d *Discoverer) storeInterfaces(ctx context.Context, job *domain.Job, dev *domain.Device) worker.Status {
	js := d.takeSnapshot(job.ID)
	if js == nil {
		return worker.Noop("no snapshot for %s", job.Target)
	}
	snap := js.snap

	window := d.cfg.Discover.WrapWindowOrDefault()
	var ports []domain.Port
	for _, ifc := range snap.Interfaces {
		if ifc.Name == "" {
			continue
		}
		ports = append(ports, domain.Port{
			DeviceIP:   dev.IP,
			Name:       ifc.Name,
			Up:         ifc.Up,
			AdminUp:    ifc.AdminUp,
			Type:       ifc.Type,
			Speed:      ifc.Speed,
			MTU:        ifc.MTU,
			Descr:      ifc.Descr,
			SlaveOf:    ifc.SlaveOf,
			LastChange: CorrectLastChange(js.prevUptime, snap.Uptime, ifc.LastChange, window),
		})
	}

	if err := d.store.ReplacePorts(ctx, dev.IP, ports); err != nil {
		return worker.Errored("store ports for %s: %v", dev.IP, err)
	}
	return worker.Done("%d ports stored for %s", len(ports), dev.IP)
}

// resolveTopology applies manual topology, resolves neighbors, and
// queues newly seen devices.
func (d *Discoverer) resolveTopology(ctx context.Context, job *domain.Job, dev *domain.Device) worker.Status {
	js := d.takeSnapshot(job.ID)
	if js == nil {
		return worker.Defer("no snapshot for %s", job.Target)
	}
	snap := js.snap
	defer d.dropSnapshot(job.ID)

	if err := d.applier.Apply(ctx, dev); err != nil {
		log.Printf("Manual topology for %s failed: %v", dev.IP, err)
	}

	peers, err := d.resolver.Resolve(ctx, dev, snap)
	if err != nil {
		return worker.Errored("resolve neighbors for %s: %v", dev.IP, err)
	}

	queued := d.gate.Enqueue(ctx, peers)
	return worker.Done("%d neighbors resolved, %d queued", len(peers), queued)
}

// expireDevices removes devices unseen for longer than the configured
// age.
func (d *Discoverer) expireDevices(ctx context.Context, job *domain.Job, dev *domain.Device) worker.Status {
	cutoff := time.Now().Add(-d.cfg.Expire.DeviceAgeOrDefault())
	n, err := d.store.ExpireDevices(ctx, cutoff)
	if err != nil {
		return worker.Errored("expire devices: %v", err)
	}
	return worker.Done("%d devices expired", n)
}
