package store

import (
	"fmt"
	"time"
)

// DeploymentRecord is a historical entry in the deployments table (spec §6),
// recorded once a Component G deployment attempt reaches a terminal state.
type DeploymentRecord struct {
	Host      string
	Project   string
	Container string
	Hash      string
	Ref       string
	Status    string // "ok" | "failed" | "rolled_back"
}

// RecordDeployment appends a terminal deployment outcome.
func (s *Store) RecordDeployment(rec DeploymentRecord) error {
	now := float64(time.Now().UnixNano()) / 1e9
	_, err := s.db.Exec(`INSERT INTO deployments (host, project, container, hash, ref, status, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, rec.Host, rec.Project, rec.Container, rec.Hash, rec.Ref, rec.Status, now)
	if err != nil {
		return fmt.Errorf("record deployment: %w", err)
	}
	return nil
}

// ListDeployments returns deployment history for a host, newest first.
func (s *Store) ListDeployments(host string) ([]DeploymentRecord, error) {
	rows, err := s.db.Query(`SELECT host, project, container, hash, ref, status FROM deployments
		WHERE host = ? ORDER BY time DESC`, host)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []DeploymentRecord
	for rows.Next() {
		var r DeploymentRecord
		if err := rows.Scan(&r.Host, &r.Project, &r.Container, &r.Hash, &r.Ref, &r.Status); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
