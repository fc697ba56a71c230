// Package snmpreader fetches device snapshots over SNMP. It walks the
// IF-MIB interface table and the LLDP and CDP remote tables, which is
// enough raw material for neighbor resolution; deeper MIB coverage
// belongs to dedicated collectors.
package snmpreader

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/snapshot"
)

const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSysUpTime = ".1.3.6.1.2.1.1.3.0"
	oidSysName   = ".1.3.6.1.2.1.1.5.0"

	oidIfDescr      = ".1.3.6.1.2.1.2.2.1.2"
	oidIfPhysAddr   = ".1.3.6.1.2.1.2.2.1.6"
	oidIfType       = ".1.3.6.1.2.1.2.2.1.3"
	oidIfMTU        = ".1.3.6.1.2.1.2.2.1.4"
	oidIfSpeed      = ".1.3.6.1.2.1.2.2.1.5"
	oidIfAdminState = ".1.3.6.1.2.1.2.2.1.7"
	oidIfOperState  = ".1.3.6.1.2.1.2.2.1.8"
	oidIfLastChange = ".1.3.6.1.2.1.2.2.1.9"
	oidIfName       = ".1.3.6.1.2.1.31.1.1.1.1"

	// ifStackTable, indexed by higherLayer.lowerLayer
	oidIfStackStatus = ".1.3.6.1.2.1.31.1.2.1.3"

	// BRIDGE-MIB dot1dBaseBridgeAddress
	oidBaseBridgeAddr = ".1.3.6.1.2.1.17.1.1.0"

	// LLDP-MIB remote table (lldpRemEntry), indexed by
	// timeMark.localPortNum.remIndex
	oidLldpRemPortID   = ".1.0.8802.1.1.2.1.4.1.1.7"
	oidLldpRemSysName  = ".1.0.8802.1.1.2.1.4.1.1.9"
	oidLldpRemSysDescr = ".1.0.8802.1.1.2.1.4.1.1.10"
	oidLldpRemManAddr  = ".1.0.8802.1.1.2.1.4.2.1.4"

	// CISCO-CDP-MIB cache table, indexed by ifIndex.deviceIndex
	oidCdpCacheAddress  = ".1.3.6.1.4.1.9.9.23.1.2.1.1.4"
	oidCdpCacheDeviceID = ".1.3.6.1.4.1.9.9.23.1.2.1.1.6"
	oidCdpCachePort     = ".1.3.6.1.4.1.9.9.23.1.2.1.1.7"
	oidCdpCachePlatform = ".1.3.6.1.4.1.9.9.23.1.2.1.1.8"
)

// Reader implements snapshot.Reader over SNMP. It tries the credential
// stanzas in order; the dispatcher has already reduced the list to
// stanzas this device may be polled with.
type Reader struct {
	cfg     *config.Config
	Timeout time.Duration
	Retries int
}

var _ snapshot.Reader = (*Reader)(nil)

// New creates an SNMP snapshot reader.
func New(cfg *config.Config) *Reader {
	return &Reader{cfg: cfg, Timeout: 3 * time.Second, Retries: 1}
}

// Driver names the transport.
func (r *Reader) Driver() string { return "snmp" }

// Read fetches the device's raw tables, trying each usable credential
// stanza in turn.
func (r *Reader) Read(ctx context.Context, device *domain.Device) (*snapshot.Snapshot, error) {
	var lastErr error
	for _, cred := range r.cfg.Credentials {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cred.Driver != "" && cred.Driver != "snmp" {
			continue
		}
		sn, err := r.open(device.IP, cred)
		if err != nil {
			lastErr = err
			continue
		}
		snap := r.collect(sn)
		sn.Conn.Close()
		return snap, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no snmp credentials for %s", device.IP)
	}
	return nil, lastErr
}

func (r *Reader) open(target string, cred config.Credential) (*gosnmp.GoSNMP, error) {
	port := cred.Port
	if port == 0 {
		port = 161
	}
	sn := &gosnmp.GoSNMP{
		Target:         target,
		Port:           uint16(port),
		Version:        gosnmp.Version2c,
		Community:      cred.Community,
		Timeout:        r.Timeout,
		Retries:        r.Retries,
		MaxRepetitions: 20,
	}
	if sn.Community == "" {
		sn.Community = "public"
	}
	if err := sn.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", target, err)
	}
	return sn, nil
}

func (r *Reader) collect(sn *gosnmp.GoSNMP) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		Interfaces:      make(map[string]snapshot.Iface),
		Neighbors:       make(map[string]snapshot.Neighbor),
		NeighborAddrsV6: make(map[string]snapshot.RemoteAddr),
	}

	snap.Name = getString(sn, oidSysName)
	snap.OS = getString(sn, oidSysDescr)
	snap.Uptime = uint32(getInt(sn, oidSysUpTime))
	snap.MAC = r.collectBaseMAC(sn)

	r.collectInterfaces(sn, snap)
	r.collectLLDP(sn, snap)
	r.collectCDP(sn, snap)

	snap.HasNeighborProtocol = len(snap.Neighbors) > 0
	return snap
}

func (r *Reader) collectInterfaces(sn *gosnmp.GoSNMP, snap *snapshot.Snapshot) {
	names := walkStringIndex(sn, oidIfName)
	if len(names) == 0 {
		names = walkStringIndex(sn, oidIfDescr)
	}
	oper := walkIntIndex(sn, oidIfOperState)
	admin := walkIntIndex(sn, oidIfAdminState)
	types := walkIntIndex(sn, oidIfType)
	mtu := walkIntIndex(sn, oidIfMTU)
	speed := walkIntIndex(sn, oidIfSpeed)
	change := walkIntIndex(sn, oidIfLastChange)
	descr := walkStringIndex(sn, oidIfDescr)

	slaves := r.walkAggregates(sn, names)

	for idx, name := range names {
		iid := strconv.Itoa(idx)
		snap.Interfaces[iid] = snapshot.Iface{
			Name:       name,
			Up:         ifState(oper[idx]),
			AdminUp:    ifState(admin[idx]),
			Type:       strconv.Itoa(types[idx]),
			Speed:      int64(speed[idx]),
			MTU:        mtu[idx],
			Descr:      descr[idx],
			LastChange: int64(change[idx]),
			SlaveOf:    slaves[idx],
		}
	}
}

// walkAggregates maps member ifIndex to the aggregate port's name via
// the ifStackTable. Rows come indexed as higherLayer.lowerLayer; the
// zero layer marks a table boundary, not a relationship.
func (r *Reader) walkAggregates(sn *gosnmp.GoSNMP, names map[int]string) map[int]string {
	out := map[int]string{}
	_ = sn.BulkWalk(oidIfStackStatus, func(pdu gosnmp.SnmpPDU) error {
		suffix := strings.TrimPrefix(pdu.Name, oidIfStackStatus+".")
		parts := strings.Split(suffix, ".")
		if len(parts) != 2 {
			return nil
		}
		higher, _ := strconv.Atoi(parts[0])
		lower, _ := strconv.Atoi(parts[1])
		if higher == 0 || lower == 0 {
			return nil
		}
		if master, ok := names[higher]; ok {
			out[lower] = master
		}
		return nil
	})
	return out
}

// collectBaseMAC reads the device's base MAC address. Bridges report it
// as dot1dBaseBridgeAddress; for routers and other non-bridge agents the
// lowest ifPhysAddress stands in, which matches how switches derive the
// base address in the first place.
func (r *Reader) collectBaseMAC(sn *gosnmp.GoSNMP) string {
	if mac := macString(getRaw(sn, oidBaseBridgeAddr)); mac != "" {
		return mac
	}
	var lowest string
	_ = sn.BulkWalk(oidIfPhysAddr, func(pdu gosnmp.SnmpPDU) error {
		mac := macString(pduRaw(pdu))
		if mac == "" {
			return nil
		}
		if lowest == "" || mac < lowest {
			lowest = mac
		}
		return nil
	})
	return lowest
}

// macString formats a 6-octet hardware address, rejecting the all-zero
// placeholder some agents report on virtual interfaces.
func macString(raw []byte) string {
	if len(raw) != 6 {
		return ""
	}
	zero := true
	for _, b := range raw {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return ""
	}
	return net.HardwareAddr(raw).String()
}

func ifState(v int) string {
	switch v {
	case 1:
		return "up"
	case 2:
		return "down"
	default:
		return ""
	}
}

// collectLLDP fills the neighbor table from the LLDP remote tables.
// The local port number in the row index is used as the local
// interface identifier; on most agents it coincides with ifIndex, and
// the resolver repairs the mangled composites seen elsewhere.
func (r *Reader) collectLLDP(sn *gosnmp.GoSNMP, snap *snapshot.Snapshot) {
	sysNames := walkSuffixString(sn, oidLldpRemSysName)
	portIDs := walkSuffixString(sn, oidLldpRemPortID)
	sysDescr := walkSuffixString(sn, oidLldpRemSysDescr)

	for suffix, name := range sysNames {
		iid := lldpLocalPort(suffix)
		if iid == "" {
			continue
		}
		n := snap.Neighbors[iid]
		n.ID = name
		n.Port = portIDs[suffix]
		n.Platform = sysDescr[suffix]
		snap.Neighbors[iid] = n
	}

	// lldpRemManAddr rows append the address family and the encoded
	// address to the remote entry index.
	_ = sn.BulkWalk(oidLldpRemManAddr, func(pdu gosnmp.SnmpPDU) error {
		suffix := strings.TrimPrefix(pdu.Name, oidLldpRemManAddr+".")
		parts := strings.Split(suffix, ".")
		if len(parts) < 5 {
			return nil
		}
		iid := parts[1]
		family, addr := decodeManAddr(parts[3:])
		if addr == "" {
			return nil
		}
		n := snap.Neighbors[iid]
		switch family {
		case 1: // ipv4
			n.Addr = mergeAddr(n.Addr, addr)
			snap.Neighbors[iid] = n
		case 2: // ipv6
			snap.NeighborAddrsV6[iid] = mergeAddr(snap.NeighborAddrsV6[iid], addr)
		}
		return nil
	})
}

// mergeAddr accumulates addresses reported for the same local port so
// the resolver sees the multi-neighbor anomaly explicitly.
func mergeAddr(existing snapshot.RemoteAddr, addr string) snapshot.RemoteAddr {
	if existing.IsNone() {
		return snapshot.OneAddr(addr)
	}
	return snapshot.ManyAddr(append(existing.All(), addr))
}

// lldpLocalPort extracts the local port number from a
// timeMark.localPortNum.remIndex row suffix.
func lldpLocalPort(suffix string) string {
	parts := strings.Split(suffix, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// decodeManAddr turns the index-encoded management address
// (family, length, octets...) into its textual form.
func decodeManAddr(parts []string) (int, string) {
	if len(parts) < 2 {
		return 0, ""
	}
	family, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ""
	}
	octets := parts[2:]
	switch family {
	case 1:
		if len(octets) != 4 {
			return family, ""
		}
		return family, strings.Join(octets, ".")
	case 2:
		if len(octets) != 16 {
			return family, ""
		}
		var b strings.Builder
		for i := 0; i < 16; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			hi, err1 := strconv.Atoi(octets[i])
			lo, err2 := strconv.Atoi(octets[i+1])
			if err1 != nil || err2 != nil {
				return family, ""
			}
			fmt.Fprintf(&b, "%02x%02x", hi, lo)
		}
		return family, b.String()
	}
	return family, ""
}

// collectCDP fills in CDP cache rows for ports LLDP did not cover.
func (r *Reader) collectCDP(sn *gosnmp.GoSNMP, snap *snapshot.Snapshot) {
	deviceIDs := walkSuffixString(sn, oidCdpCacheDeviceID)
	ports := walkSuffixString(sn, oidCdpCachePort)
	platforms := walkSuffixString(sn, oidCdpCachePlatform)
	addrs := walkSuffixString(sn, oidCdpCacheAddress)

	for suffix, id := range deviceIDs {
		iid := cdpIfIndex(suffix)
		if iid == "" {
			continue
		}
		if _, ok := snap.Neighbors[iid]; ok {
			continue // LLDP already reported this port
		}
		n := snapshot.Neighbor{
			ID:       id,
			Port:     ports[suffix],
			Platform: platforms[suffix],
		}
		if raw, ok := addrs[suffix]; ok && len(raw) == 4 {
			n.Addr = snapshot.OneAddr(fmt.Sprintf("%d.%d.%d.%d",
				raw[0], raw[1], raw[2], raw[3]))
		}
		snap.Neighbors[iid] = n
	}
}

// cdpIfIndex extracts the ifIndex from an ifIndex.deviceIndex suffix.
func cdpIfIndex(suffix string) string {
	parts := strings.Split(suffix, ".")
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

func getString(sn *gosnmp.GoSNMP, oid string) string {
	p, err := sn.Get([]string{oid})
	if err != nil || len(p.Variables) == 0 {
		return ""
	}
	return pduString(p.Variables[0])
}

func getInt(sn *gosnmp.GoSNMP, oid string) int {
	p, err := sn.Get([]string{oid})
	if err != nil || len(p.Variables) == 0 {
		return 0
	}
	return int(gosnmp.ToBigInt(p.Variables[0].Value).Int64())
}

func getRaw(sn *gosnmp.GoSNMP, oid string) []byte {
	p, err := sn.Get([]string{oid})
	if err != nil || len(p.Variables) == 0 {
		return nil
	}
	return pduRaw(p.Variables[0])
}

func pduRaw(pdu gosnmp.SnmpPDU) []byte {
	switch v := pdu.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// walkStringIndex walks a column and keys results by the final index
// component.
func walkStringIndex(sn *gosnmp.GoSNMP, oid string) map[int]string {
	out := map[int]string{}
	err := sn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		out[indexFromOid(pdu.Name)] = pduString(pdu)
		return nil
	})
	if err != nil {
		log.Printf("SNMP walk %s failed: %v", oid, err)
	}
	return out
}

func walkIntIndex(sn *gosnmp.GoSNMP, oid string) map[int]int {
	out := map[int]int{}
	_ = sn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		out[indexFromOid(pdu.Name)] = int(gosnmp.ToBigInt(pdu.Value).Int64())
		return nil
	})
	return out
}

// walkSuffixString walks a column and keys results by the full row
// suffix after the column OID.
func walkSuffixString(sn *gosnmp.GoSNMP, oid string) map[string]string {
	out := map[string]string{}
	_ = sn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		out[strings.TrimPrefix(pdu.Name, oid+".")] = pduString(pdu)
		return nil
	})
	return out
}

func indexFromOid(name string) int {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(name[i+1:])
	return n
}
