package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/repository"
)

const portColumns = `device_ip, name, up, admin_up, type, speed, mtu, vlan,
	descr, last_change, remote_ip, remote_port, remote_type, remote_id,
	is_uplink, is_master, manual_topo, slave_of`

func scanPort(row rowScanner) (*domain.Port, error) {
	var (
		p                                          domain.Port
		up, adminUp, ptype, vlan, descr            sql.NullString
		remoteIP, remotePort, remoteType, remoteID sql.NullString
		slaveOf                                    sql.NullString
		isUplink, isMaster, manualTopo             int
	)
	err := row.Scan(&p.DeviceIP, &p.Name, &up, &adminUp, &ptype, &p.Speed,
		&p.MTU, &vlan, &descr, &p.LastChange, &remoteIP, &remotePort,
		&remoteType, &remoteID, &isUplink, &isMaster, &manualTopo, &slaveOf)
	if err != nil {
		return nil, fmt.Errorf("failed to scan port: %w", err)
	}
	p.Up = nullToString(up)
	p.AdminUp = nullToString(adminUp)
	p.Type = nullToString(ptype)
	p.Vlan = nullToString(vlan)
	p.Descr = nullToString(descr)
	p.RemoteIP = nullToString(remoteIP)
	p.RemotePort = nullToString(remotePort)
	p.RemoteType = nullToString(remoteType)
	p.RemoteID = nullToString(remoteID)
	p.SlaveOf = nullToString(slaveOf)
	p.IsUplink = isUplink != 0
	p.IsMaster = isMaster != 0
	p.ManualTopo = manualTopo != 0
	return &p, nil
}

// GetPort looks up a single port by device IP and port name
func (r *Repository) GetPort(ctx context.Context, deviceIP, name string) (*domain.Port, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+portColumns+` FROM ports WHERE device_ip = ? AND name = ?`,
		deviceIP, name)
	p, err := scanPort(row)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

// ListPorts returns all ports of a device
func (r *Repository) ListPorts(ctx context.Context, deviceIP string) ([]domain.Port, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+portColumns+` FROM ports WHERE device_ip = ? ORDER BY name`, deviceIP)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer rows.Close()

	var ports []domain.Port
	for rows.Next() {
		p, err := scanPort(rows)
		if err != nil {
			return nil, err
		}
		ports = append(ports, *p)
	}
	return ports, rows.Err()
}

// UpsertPort inserts or updates a single port row
func (r *Repository) UpsertPort(ctx context.Context, p *domain.Port) error {
	_, err := r.db.ExecContext(ctx, insertPortSQL+`
		ON CONFLICT(device_ip, name) DO UPDATE SET
			up = excluded.up,
			admin_up = excluded.admin_up,
			type = excluded.type,
			speed = excluded.speed,
			mtu = excluded.mtu,
			vlan = excluded.vlan,
			descr = excluded.descr,
			last_change = excluded.last_change,
			remote_ip = excluded.remote_ip,
			remote_port = excluded.remote_port,
			remote_type = excluded.remote_type,
			remote_id = excluded.remote_id,
			is_uplink = excluded.is_uplink,
			is_master = excluded.is_master,
			manual_topo = excluded.manual_topo,
			slave_of = excluded.slave_of
	`, portArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to upsert port %s/%s: %w", p.DeviceIP, p.Name, err)
	}
	return nil
}

const insertPortSQL = `
	INSERT INTO ports (device_ip, name, up, admin_up, type, speed, mtu,
		vlan, descr, last_change, remote_ip, remote_port, remote_type,
		remote_id, is_uplink, is_master, manual_topo, slave_of)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func portArgs(p *domain.Port) []any {
	return []any{
		p.DeviceIP, p.Name, stringToNull(p.Up), stringToNull(p.AdminUp),
		stringToNull(p.Type), p.Speed, p.MTU, stringToNull(p.Vlan),
		stringToNull(p.Descr), p.LastChange, stringToNull(p.RemoteIP),
		stringToNull(p.RemotePort), stringToNull(p.RemoteType),
		stringToNull(p.RemoteID), boolToInt(p.IsUplink), boolToInt(p.IsMaster),
		boolToInt(p.ManualTopo), stringToNull(p.SlaveOf),
	}
}

// ReplacePorts clears and repopulates a device's port table in one
// transaction. Neighbor and manual-topology fields of rows that
// survive by name carry over, so an interface refresh does not wipe
// resolved topology.
func (r *Repository) ReplacePorts(ctx context.Context, deviceIP string, ports []domain.Port) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin port replace: %w", err)
	}
	defer tx.Rollback()

	prev := make(map[string]domain.Port)
	rows, err := tx.QueryContext(ctx,
		`SELECT `+portColumns+` FROM ports WHERE device_ip = ?`, deviceIP)
	if err != nil {
		return fmt.Errorf("failed to read existing ports: %w", err)
	}
	for rows.Next() {
		p, err := scanPort(rows)
		if err != nil {
			rows.Close()
			return err
		}
		prev[p.Name] = *p
	}
	if err := rows.Close(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ports WHERE device_ip = ?`, deviceIP); err != nil {
		return fmt.Errorf("failed to clear ports: %w", err)
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
		if _, err := tx.ExecContext(ctx, insertPortSQL, portArgs(&p)...); err != nil {
			return fmt.Errorf("failed to insert port %s: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// SetPortNeighbor writes discovered neighbor fields to a port row. The
// manual_topo check and the update run in one transaction; a row
// flagged manual is left alone and false is returned.
func (r *Repository) SetPortNeighbor(ctx context.Context, deviceIP, portName string, n repository.PortNeighbor) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin neighbor update: %w", err)
	}
	defer tx.Rollback()

	var manual int
	err = tx.QueryRowContext(ctx,
		`SELECT manual_topo FROM ports WHERE device_ip = ? AND name = ?`,
		deviceIP, portName).Scan(&manual)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check port %s/%s: %w", deviceIP, portName, err)
	}
	if manual != 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ports SET
			remote_ip = ?, remote_port = ?, remote_type = ?, remote_id = ?,
			is_uplink = ?, is_master = ?, manual_topo = 0
		WHERE device_ip = ? AND name = ?
	`, stringToNull(n.RemoteIP), stringToNull(n.RemotePort),
		stringToNull(n.RemoteType), stringToNull(n.RemoteID),
		boolToInt(n.IsUplink), boolToInt(n.IsMaster),
		deviceIP, portName); err != nil {
		return false, fmt.Errorf("failed to update port %s/%s: %w", deviceIP, portName, err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SetManualNeighbor writes an operator-declared link endpoint. The
// protocol-reported identity fields are cleared: manual links carry
// none.
func (r *Repository) SetManualNeighbor(ctx context.Context, deviceIP, portName, remoteIP, remotePort string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ports SET
			remote_ip = ?, remote_port = ?, remote_type = NULL,
			remote_id = NULL, is_uplink = 1, manual_topo = 1
		WHERE device_ip = ? AND name = ?
	`, stringToNull(remoteIP), stringToNull(remotePort), deviceIP, portName)
	if err != nil {
		return fmt.Errorf("failed to set manual neighbor on %s/%s: %w", deviceIP, portName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("port %s/%s not found", deviceIP, portName)
	}
	return nil
}

// ClearManualTopo drops the manual flag on all of a device's ports
func (r *Repository) ClearManualTopo(ctx context.Context, deviceIP string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ports SET manual_topo = 0 WHERE device_ip = ?`, deviceIP)
	if err != nil {
		return fmt.Errorf("failed to clear manual topology for %s: %w", deviceIP, err)
	}
	return nil
}
