package discover

import (
	"context"
	"time"

	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/repository"
)

// Store is the slice of the repository the discovery engine needs.
// *sqlite.Repository satisfies it; tests use an in-memory fake.
type Store interface {
	GetDevice(ctx context.Context, ip string) (*domain.Device, error)
	GetDeviceByName(ctx context.Context, name string) (*domain.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error)
	GetDeviceByShortName(ctx context.Context, short string) (*domain.Device, error)
	UpsertDevice(ctx context.Context, d *domain.Device) error
	ExpireDevices(ctx context.Context, cutoff time.Time) (int, error)

	GetPort(ctx context.Context, deviceIP, name string) (*domain.Port, error)
	ReplacePorts(ctx context.Context, deviceIP string, ports []domain.Port) error
	SetPortNeighbor(ctx context.Context, deviceIP, portName string, n repository.PortNeighbor) (bool, error)
	SetManualNeighbor(ctx context.Context, deviceIP, portName, remoteIP, remotePort string) error
	ClearManualTopo(ctx context.Context, deviceIP string) error

	TopologyLinks(ctx context.Context) ([]domain.TopologyLink, error)
}
