package discover

import (
	"context"
	"fmt"
	"log"

	"github.com/pilyon3/netdisco/internal/domain"
)

// Applier re-asserts operator-declared topology for a device. Manual
// links always win over protocol-discovered data: ports they touch are
// flagged so the resolver leaves them alone.
type Applier struct {
	store Store
}

// NewApplier creates a manual topology applier.
func NewApplier(store Store) *Applier {
	return &Applier{store: store}
}

// Apply clears stale manual-link markers on the device's ports and
// re-applies every configured link touching the device. Links whose
// far end is not yet a known device are skipped, not fatal; each link
// is its own recoverable unit.
func (a *Applier) Apply(ctx context.Context, device *domain.Device) error {
	if err := a.store.ClearManualTopo(ctx, device.IP); err != nil {
		return fmt.Errorf("clear manual topology: %w", err)
	}

	links, err := a.store.TopologyLinks(ctx)
	if err != nil {
		return fmt.Errorf("load topology links: %w", err)
	}

	for _, link := range links {
		d1 := a.resolveEndpoint(ctx, link.Device1)
		d2 := a.resolveEndpoint(ctx, link.Device2)
		if d1 == nil || d2 == nil {
			if link.Touches(device.IP) {
				log.Printf("Topology link %s/%s <-> %s/%s references unknown device, skipped",
					link.Device1, link.Port1, link.Device2, link.Port2)
			}
			continue
		}
		if d1.IP != device.IP && d2.IP != device.IP {
			continue
		}

		if err := a.store.SetManualNeighbor(ctx, d1.IP, link.Port1, d2.IP, link.Port2); err != nil {
			log.Printf("Manual link %s/%s -> %s/%s failed: %v",
				d1.IP, link.Port1, d2.IP, link.Port2, err)
		}
		if err := a.store.SetManualNeighbor(ctx, d2.IP, link.Port2, d1.IP, link.Port1); err != nil {
			log.Printf("Manual link %s/%s -> %s/%s failed: %v",
				d2.IP, link.Port2, d1.IP, link.Port1, err)
		}
	}

	return nil
}

// resolveEndpoint maps a link endpoint, stored as canonical IP or as a
// device name, to the stored device record.
func (a *Applier) resolveEndpoint(ctx context.Context, ident string) *domain.Device {
	if d, err := a.store.GetDevice(ctx, ident); err == nil && d != nil {
		return d
	}
	if d, err := a.store.GetDeviceByName(ctx, ident); err == nil && d != nil {
		return d
	}
	return nil
}
