// Package sqlite implements repository.Repository over a SQLite
// database. WAL mode and a busy timeout let concurrent discovery jobs
// share the store; neighbor writes take a transaction per port row so
// a manual-topology pass and a resolver pass cannot interleave on the
// same row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		ip TEXT PRIMARY KEY,
		dns TEXT,
		name TEXT,
		vendor TEXT,
		model TEXT,
		os TEXT,
		os_version TEXT,
		serial TEXT,
		location TEXT,
		contact TEXT,
		layers TEXT,
		mac TEXT,
		uptime INTEGER NOT NULL DEFAULT 0,
		last_discover DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ports (
		device_ip TEXT NOT NULL,
		name TEXT NOT NULL,
		up TEXT,
		admin_up TEXT,
		type TEXT,
		speed INTEGER NOT NULL DEFAULT 0,
		mtu INTEGER NOT NULL DEFAULT 0,
		vlan TEXT,
		descr TEXT,
		last_change INTEGER NOT NULL DEFAULT 0,
		remote_ip TEXT,
		remote_port TEXT,
		remote_type TEXT,
		remote_id TEXT,
		is_uplink INTEGER NOT NULL DEFAULT 0,
		is_master INTEGER NOT NULL DEFAULT 0,
		manual_topo INTEGER NOT NULL DEFAULT 0,
		slave_of TEXT,
		PRIMARY KEY (device_ip, name),
		FOREIGN KEY (device_ip) REFERENCES devices(ip) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS topology (
		device1 TEXT NOT NULL,
		port1 TEXT NOT NULL,
		device2 TEXT NOT NULL,
		port2 TEXT NOT NULL,
		PRIMARY KEY (device1, port1, device2, port2)
	);

	CREATE INDEX IF NOT EXISTS idx_devices_dns ON devices(dns);
	CREATE INDEX IF NOT EXISTS idx_devices_mac ON devices(mac);
	CREATE INDEX IF NOT EXISTS idx_ports_remote ON ports(remote_ip);
	`

	_, err := r.db.Exec(schema)
	return err
}

// GetDevice looks up a device by canonical IP
func (r *Repository) GetDevice(ctx context.Context, ip string) (*domain.Device, error) {
	return r.getDeviceWhere(ctx, "ip = ?", ip)
}

// GetDeviceByName looks up a device by DNS name or sysName
func (r *Repository) GetDeviceByName(ctx context.Context, name string) (*domain.Device, error) {
	return r.getDeviceWhere(ctx, "lower(dns) = lower(?) OR lower(name) = lower(?)", name, name)
}

// GetDeviceByMAC looks up a device by its base MAC address
func (r *Repository) GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error) {
	return r.getDeviceWhere(ctx, "lower(mac) = lower(?)", mac)
}

// GetDeviceByShortName matches the hostname up to the first dot and
// returns a device only when exactly one matches.
func (r *Repository) GetDeviceByShortName(ctx context.Context, short string) (*domain.Device, error) {
	short = strings.ToLower(strings.TrimSpace(short))
	if short == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE lower(dns) = ? OR lower(dns) LIKE ? || '.%'
		   OR lower(name) = ? OR lower(name) LIKE ? || '.%'
		LIMIT 2
	`, short, short, short, short)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var matches []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ambiguous short names are no match at all.
	if len(matches) != 1 {
		return nil, nil
	}
	return matches[0], nil
}

// ListDevices returns all stored devices
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY ip`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

const deviceColumns = `ip, dns, name, vendor, model, os, os_version, serial,
	location, contact, layers, mac, uptime, last_discover, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d                                  domain.Device
		dns, name, vendor, model, os       sql.NullString
		osVersion, serial, location        sql.NullString
		contact, layers, mac               sql.NullString
		lastDiscover                       sql.NullTime
	)
	err := row.Scan(&d.IP, &dns, &name, &vendor, &model, &os, &osVersion,
		&serial, &location, &contact, &layers, &mac, &d.Uptime,
		&lastDiscover, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	d.DNS = nullToString(dns)
	d.Name = nullToString(name)
	d.Vendor = nullToString(vendor)
	d.Model = nullToString(model)
	d.OS = nullToString(os)
	d.OSVersion = nullToString(osVersion)
	d.Serial = nullToString(serial)
	d.Location = nullToString(location)
	d.Contact = nullToString(contact)
	d.Layers = nullToString(layers)
	d.MAC = nullToString(mac)
	d.LastDiscover = nullToTimePtr(lastDiscover)
	return &d, nil
}

func (r *Repository) getDeviceWhere(ctx context.Context, where string, args ...any) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE `+where+` LIMIT 1`, args...)
	d, err := scanDevice(row)
	if err == nil {
		return d, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

// UpsertDevice inserts or updates a device row
func (r *Repository) UpsertDevice(ctx context.Context, d *domain.Device) error {
	d.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (ip, dns, name, vendor, model, os, os_version,
			serial, location, contact, layers, mac, uptime, last_discover, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET
			dns = excluded.dns,
			name = excluded.name,
			vendor = excluded.vendor,
			model = excluded.model,
			os = excluded.os,
			os_version = excluded.os_version,
			serial = excluded.serial,
			location = excluded.location,
			contact = excluded.contact,
			layers = excluded.layers,
			mac = excluded.mac,
			uptime = excluded.uptime,
			last_discover = excluded.last_discover,
			updated_at = excluded.updated_at
	`, d.IP, stringToNull(d.DNS), stringToNull(d.Name), stringToNull(d.Vendor),
		stringToNull(d.Model), stringToNull(d.OS), stringToNull(d.OSVersion),
		stringToNull(d.Serial), stringToNull(d.Location), stringToNull(d.Contact),
		stringToNull(d.Layers), stringToNull(d.MAC), d.Uptime,
		timePtrToNull(d.LastDiscover), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.IP, err)
	}
	return nil
}

// DeleteDevice removes a device and, via cascade, its ports
func (r *Repository) DeleteDevice(ctx context.Context, ip string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE ip = ?`, ip)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", ip, err)
	}
	return nil
}

// RekeyDevice moves a device to a new canonical IP. The old row and
// its dependents are removed first so no orphaned children remain;
// any stale row already stored under the new key is removed too.
func (r *Repository) RekeyDevice(ctx context.Context, oldIP, newIP string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rekey: %w", err)
	}
	defer tx.Rollback()

	old := tx.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE ip = ?`, oldIP)
	d, err := scanDevice(old)
	if err != nil {
		return fmt.Errorf("failed to load device %s for rekey: %w", oldIP, err)
	}

	// A stale row already stored under the new key goes first, taking
	// its ports with it.
	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE ip = ?`, newIP); err != nil {
		return fmt.Errorf("failed to clear rekey target: %w", err)
	}

	d.IP = newIP
	d.UpdatedAt = time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices (ip, dns, name, vendor, model, os, os_version,
			serial, location, contact, layers, mac, uptime, last_discover,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.IP, stringToNull(d.DNS), stringToNull(d.Name), stringToNull(d.Vendor),
		stringToNull(d.Model), stringToNull(d.OS), stringToNull(d.OSVersion),
		stringToNull(d.Serial), stringToNull(d.Location), stringToNull(d.Contact),
		stringToNull(d.Layers), stringToNull(d.MAC), d.Uptime,
		timePtrToNull(d.LastDiscover), d.CreatedAt, d.UpdatedAt); err != nil {
		return fmt.Errorf("failed to reinsert device as %s: %w", newIP, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ports SET device_ip = ? WHERE device_ip = ?`, newIP, oldIP); err != nil {
		return fmt.Errorf("failed to move ports to %s: %w", newIP, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE ip = ?`, oldIP); err != nil {
		return fmt.Errorf("failed to remove device %s: %w", oldIP, err)
	}

	return tx.Commit()
}

// ExpireDevices deletes devices whose last discovery predates cutoff
func (r *Repository) ExpireDevices(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM devices
		WHERE last_discover IS NOT NULL AND last_discover < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire devices: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the database handle
func (r *Repository) Close() error {
	return r.db.Close()
}
