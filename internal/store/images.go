package store

import (
	"encoding/json"
	"fmt"
)

// ImageTag is one pushed image/tag record, as surfaced by
// DockerListImageTags/DockerListImageTagsByHash (original_source/src/bin/
// sadmin/list_images.rs's ImageInfo: image, tag, hash, time, user, pin,
// labels, removed).
type ImageTag struct {
	Image   string            `json:"image"`
	Tag     string            `json:"tag"`
	Hash    string            `json:"hash"`
	Time    float64           `json:"time"`
	User    string            `json:"user,omitempty"`
	Pin     bool              `json:"pin"`
	Labels  map[string]string `json:"labels,omitempty"`
	Removed *float64          `json:"removed,omitempty"`
}

// RecordImageTag upserts a pushed image/tag's metadata, keyed on
// (image, tag, hash). Nothing in this scope populates it yet — see
// DESIGN.md for why — but DockerListImageTags{,ByHash} read from it as
// soon as anything does.
func (s *Store) RecordImageTag(it ImageTag) error {
	labels, err := json.Marshal(it.Labels)
	if err != nil {
		return fmt.Errorf("marshal image tag labels: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO docker_image_tags (image, tag, hash, time, user, pin, labels, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (image, tag, hash) DO UPDATE SET
			time = excluded.time, user = excluded.user, pin = excluded.pin,
			labels = excluded.labels, removed = excluded.removed`,
		it.Image, it.Tag, it.Hash, it.Time, it.User, boolToInt(it.Pin), string(labels), it.Removed)
	if err != nil {
		return fmt.Errorf("record image tag: %w", err)
	}
	return nil
}

// ListImageTags returns every tracked image/tag, newest first.
func (s *Store) ListImageTags() ([]ImageTag, error) {
	rows, err := s.db.Query(`SELECT image, tag, hash, time, user, pin, labels, removed
		FROM docker_image_tags ORDER BY time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list image tags: %w", err)
	}
	defer rows.Close()
	return scanImageTags(rows)
}

// ListImageTagsByHash returns the tracked tags matching any of hashes.
func (s *Store) ListImageTagsByHash(hashes []string) ([]ImageTag, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(hashes)*2)
	args := make([]any, 0, len(hashes))
	for i, h := range hashes {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, h)
	}
	rows, err := s.db.Query(`SELECT image, tag, hash, time, user, pin, labels, removed
		FROM docker_image_tags WHERE hash IN (`+string(placeholders)+`) ORDER BY time DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list image tags by hash: %w", err)
	}
	defer rows.Close()
	return scanImageTags(rows)
}

func scanImageTags(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]ImageTag, error) {
	var out []ImageTag
	for rows.Next() {
		var it ImageTag
		var pin int
		var labels string
		var removed *float64
		if err := rows.Scan(&it.Image, &it.Tag, &it.Hash, &it.Time, &it.User, &pin, &labels, &removed); err != nil {
			return nil, fmt.Errorf("scan image tag: %w", err)
		}
		it.Pin = pin != 0
		it.Removed = removed
		if labels != "" {
			_ = json.Unmarshal([]byte(labels), &it.Labels)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
