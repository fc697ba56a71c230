package discover

import (
	"context"
	"strings"
	"time"

	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/repository"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	devices map[string]*domain.Device
	ports   map[string]*domain.Port
	links   []domain.TopologyLink
}

func newMemStore() *memStore {
	return &memStore{
		devices: make(map[string]*domain.Device),
		ports:   make(map[string]*domain.Port),
	}
}

func portKey(deviceIP, name string) string { return deviceIP + "|" + name }

func (m *memStore) addDevice(d *domain.Device) *domain.Device {
	m.devices[d.IP] = d
	return d
}

func (m *memStore) addPort(p *domain.Port) *domain.Port {
	m.ports[portKey(p.DeviceIP, p.Name)] = p
	return p
}

func (m *memStore) GetDevice(_ context.Context, ip string) (*domain.Device, error) {
	return m.devices[ip], nil
}

func (m *memStore) GetDeviceByName(_ context.Context, name string) (*domain.Device, error) {
	for _, d := range m.devices {
		if strings.EqualFold(d.DNS, name) || strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetDeviceByMAC(_ context.Context, mac string) (*domain.Device, error) {
	for _, d := range m.devices {
		if d.MAC != "" && strings.EqualFold(d.MAC, mac) {
			return d, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetDeviceByShortName(_ context.Context, short string) (*domain.Device, error) {
	var matches []*domain.Device
	for _, d := range m.devices {
		if domain.ShortName(d.DNS) == short || domain.ShortName(d.Name) == short {
			matches = append(matches, d)
		}
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return matches[0], nil
}

func (m *memStore) UpsertDevice(_ context.Context, d *domain.Device) error {
	m.devices[d.IP] = d
	return nil
}

func (m *memStore) ExpireDevices(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for ip, d := range m.devices {
		if d.LastDiscover != nil && d.LastDiscover.Before(cutoff) {
			delete(m.devices, ip)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetPort(_ context.Context, deviceIP, name string) (*domain.Port, error) {
	return m.ports[portKey(deviceIP, name)], nil
}

func (m *memStore) ReplacePorts(_ context.Context, deviceIP string, ports []domain.Port) error {
	prev := make(map[string]*domain.Port)
	for key, p := range m.ports {
		if p.DeviceIP == deviceIP {
			prev[p.Name] = p
			delete(m.ports, key)
		}
	}
	for i := range ports {
		p := ports[i]
		p.DeviceIP = deviceIP
		if old, ok := prev[p.Name]; ok {
			p.RemoteIP = old.RemoteIP
			p.RemotePort = old.RemotePort
			p.RemoteType = old.RemoteType
			p.RemoteID = old.RemoteID
			p.IsUplink = old.IsUplink
			p.IsMaster = old.IsMaster
			p.ManualTopo = old.ManualTopo
		}
		m.ports[portKey(deviceIP, p.Name)] = &p
	}
	return nil
}

func (m *memStore) SetPortNeighbor(_ context.Context, deviceIP, portName string, n repository.PortNeighbor) (bool, error) {
	p, ok := m.ports[portKey(deviceIP, portName)]
	if !ok || p.ManualTopo {
		return false, nil
	}
	p.RemoteIP = n.RemoteIP
	p.RemotePort = n.RemotePort
	p.RemoteType = n.RemoteType
	p.RemoteID = n.RemoteID
	p.IsUplink = n.IsUplink
	p.IsMaster = n.IsMaster
	p.ManualTopo = false
	return true, nil
}

func (m *memStore) SetManualNeighbor(_ context.Context, deviceIP, portName, remoteIP, remotePort string) error {
	p, ok := m.ports[portKey(deviceIP, portName)]
	if !ok {
		return nil
	}
	p.RemoteIP = remoteIP
	p.RemotePort = remotePort
	p.RemoteType = ""
	p.RemoteID = ""
	p.IsUplink = true
	p.ManualTopo = true
	return nil
}

func (m *memStore) ClearManualTopo(_ context.Context, deviceIP string) error {
	for _, p := range m.ports {
		if p.DeviceIP == deviceIP {
			p.ManualTopo = false
		}
	}
	return nil
}

func (m *memStore) TopologyLinks(_ context.Context) ([]domain.TopologyLink, error) {
	return m.links, nil
}
