package store

import (
	"encoding/json"
	"fmt"

	"github.com/antialize/simple-admin-sub001/internal/auth"
)

// Object type tags. These are server-local conventions (not part of the
// wire protocol's numeric page tags in §6, which are a distinct space).
const (
	ObjectTypeUser = 1
	ObjectTypeHost = 2
)

// GetUser implements auth.Store: the newest User object of the given name.
func (s *Store) GetUser(name string) (*auth.User, error) {
	objs, err := s.ListObjects(ObjectTypeUser)
	if err != nil {
		return nil, err
	}
	for _, summary := range objs {
		if summary.Name != name {
			continue
		}
		obj, err := s.GetObject(summary.ID)
		if err != nil || obj == nil {
			return nil, err
		}
		var u auth.User
		if err := json.Unmarshal(obj.Content, &u); err != nil {
			return nil, fmt.Errorf("decode user %q: %w", name, err)
		}
		return &u, nil
	}
	return nil, nil
}

// SaveUser writes a new revision of a User object, creating it if id is 0.
func (s *Store) SaveUser(id int64, u auth.User, author string) (int64, int, error) {
	content, err := json.Marshal(u)
	if err != nil {
		return 0, 0, fmt.Errorf("encode user: %w", err)
	}
	return s.ChangeObject(Object{ID: id, Type: ObjectTypeUser, Name: u.Name, Content: content}, author)
}

// HostRecord is an Object of type HOST (spec §3). Password is the plain
// bootstrap credential used only during /setup enrolment; it is rewritten
// to PasswordHash on first successful setup call and cleared.
type HostRecord struct {
	Name         string `json:"name"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// GetHost returns the newest HostRecord of the given name.
func (s *Store) GetHost(name string) (int64, *HostRecord, error) {
	objs, err := s.ListObjects(ObjectTypeHost)
	if err != nil {
		return 0, nil, err
	}
	for _, summary := range objs {
		if summary.Name != name {
			continue
		}
		obj, err := s.GetObject(summary.ID)
		if err != nil || obj == nil {
			return 0, nil, err
		}
		var h HostRecord
		if err := json.Unmarshal(obj.Content, &h); err != nil {
			return 0, nil, fmt.Errorf("decode host %q: %w", name, err)
		}
		return obj.ID, &h, nil
	}
	return 0, nil, nil
}

// SaveHost writes a new revision of a HostRecord, creating it if id is 0.
func (s *Store) SaveHost(id int64, h HostRecord, author string) (int64, int, error) {
	content, err := json.Marshal(h)
	if err != nil {
		return 0, 0, fmt.Errorf("encode host: %w", err)
	}
	return s.ChangeObject(Object{ID: id, Type: ObjectTypeHost, Name: h.Name, Content: content}, author)
}
