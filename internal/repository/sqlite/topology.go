package sqlite

import (
	"context"
	"fmt"

	"github.com/pilyon3/netdisco/internal/domain"
)

// TopologyLinks returns every manually configured link
func (r *Repository) TopologyLinks(ctx context.Context) ([]domain.TopologyLink, error) {
	return r.queryLinks(ctx,
		`SELECT device1, port1, device2, port2 FROM topology`)
}

// TopologyLinksFor returns the manually configured links touching a
// device identifier on either side
func (r *Repository) TopologyLinksFor(ctx context.Context, device string) ([]domain.TopologyLink, error) {
	return r.queryLinks(ctx,
		`SELECT device1, port1, device2, port2 FROM topology
		 WHERE device1 = ? OR device2 = ?`, device, device)
}

func (r *Repository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.TopologyLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query topology: %w", err)
	}
	defer rows.Close()

	var links []domain.TopologyLink
	for rows.Next() {
		var l domain.TopologyLink
		if err := rows.Scan(&l.Device1, &l.Port1, &l.Device2, &l.Port2); err != nil {
			return nil, fmt.Errorf("failed to scan topology link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// AddTopologyLink stores a manual link
func (r *Repository) AddTopologyLink(ctx context.Context, link domain.TopologyLink) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO topology (device1, port1, device2, port2)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, link.Device1, link.Port1, link.Device2, link.Port2)
	if err != nil {
		return fmt.Errorf("failed to add topology link: %w", err)
	}
	return nil
}

// RemoveTopologyLink deletes a manual link
func (r *Repository) RemoveTopologyLink(ctx context.Context, link domain.TopologyLink) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM topology
		WHERE device1 = ? AND port1 = ? AND device2 = ? AND port2 = ?
	`, link.Device1, link.Port1, link.Device2, link.Port2)
	if err != nil {
		return fmt.Errorf("failed to remove topology link: %w", err)
	}
	return nil
}
