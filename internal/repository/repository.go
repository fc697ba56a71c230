package repository

import (
	"context"
	"time"

	"github.com/pilyon3/netdisco/internal/domain"
)

// PortNeighbor carries the neighbor fields written to a port row by the
// discovery engine in one update.
type PortNeighbor struct {
	RemoteIP   string
	RemotePort string
	RemoteType string
	RemoteID   string
	IsUplink   bool
	IsMaster   bool
}

// Repository defines data access for devices, ports and topology
// overrides.
type Repository interface {
	// Device lookups. A nil device with a nil error means not found.
	GetDevice(ctx context.Context, ip string) (*domain.Device, error)
	GetDeviceByName(ctx context.Context, name string) (*domain.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error)
	// GetDeviceByShortName matches name/DNS up to the first dot,
	// case-insensitively, and returns a device only on a unique match.
	GetDeviceByShortName(ctx context.Context, short string) (*domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)

	UpsertDevice(ctx context.Context, d *domain.Device) error
	// DeleteDevice removes the device row and all dependent rows.
	DeleteDevice(ctx context.Context, ip string) error
	// RekeyDevice moves a device and its dependents to a new canonical
	// IP, deleting any stale row already stored under the new key.
	RekeyDevice(ctx context.Context, oldIP, newIP string) error
	// ExpireDevices deletes devices not discovered since the cutoff
	// and returns how many were removed.
	ExpireDevices(ctx context.Context, cutoff time.Time) (int, error)

	// Port access.
	GetPort(ctx context.Context, deviceIP, name string) (*domain.Port, error)
	ListPorts(ctx context.Context, deviceIP string) ([]domain.Port, error)
	UpsertPort(ctx context.Context, p *domain.Port) error
	// ReplacePorts clears and repopulates a device's port table as one
	// transaction, preserving neighbor and manual-topology fields of
	// rows that survive by name.
	ReplacePorts(ctx context.Context, deviceIP string, ports []domain.Port) error

	// SetPortNeighbor writes discovered neighbor fields to a port row.
	// The read of manual_topo and the update happen inside one
	// transaction; rows flagged manual are left untouched and false is
	// returned.
	SetPortNeighbor(ctx context.Context, deviceIP, portName string, n PortNeighbor) (bool, error)
	// SetManualNeighbor writes an operator-declared link endpoint,
	// setting manual_topo and clearing any protocol-reported identity.
	SetManualNeighbor(ctx context.Context, deviceIP, portName, remoteIP, remotePort string) error
	// ClearManualTopo drops the manual flag on all of a device's ports.
	ClearManualTopo(ctx context.Context, deviceIP string) error

	// Topology overrides.
	TopologyLinks(ctx context.Context) ([]domain.TopologyLink, error)
	TopologyLinksFor(ctx context.Context, device string) ([]domain.TopologyLink, error)
	AddTopologyLink(ctx context.Context, link domain.TopologyLink) error
	RemoveTopologyLink(ctx context.Context, link domain.TopologyLink) error

	Close() error
}
