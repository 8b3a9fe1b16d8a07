package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/containerd/errdefs"
)

// Lifecycle state of a container record.
type ContainerState string

const (
	ContainerCreated ContainerState = "created"
	ContainerRunning ContainerState = "running"
	ContainerExited  ContainerState = "exited"
)

// A named container known to the store.
//
// The record maps the name to the container's rootfs directory and tracks
// its lifecycle; the launcher updates the state and pid as it progresses.
type ContainerRecord struct {
	Name     string         `json:"name"`
	Image    string         `json:"image"`
	Rootfs   string         `json:"rootfs"`
	PID      int            `json:"pid,omitempty"`
	State    ContainerState `json:"state"`
	ExitCode int            `json:"exitCode,omitempty"`
}

// Creates or updates a container record, keyed by name.
func (s *Store) SaveContainer(rec ContainerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers, err := s.readContainers()
	if err != nil {
		return err
	}
	containers[rec.Name] = rec
	return s.writeContainers(containers)
}

// Looks up a container record by name.
func (s *Store) GetContainer(name string) (ContainerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers, err := s.readContainers()
	if err != nil {
		return ContainerRecord{}, err
	}
	rec, ok := containers[name]
	if !ok {
		return ContainerRecord{}, fmt.Errorf("container %q: %w", name, errdefs.ErrNotFound)
	}
	return rec, nil
}

// Returns all container records, ordered by name.
func (s *Store) ListContainers() ([]ContainerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers, err := s.readContainers()
	if err != nil {
		return nil, err
	}

	recs := make([]ContainerRecord, 0, len(containers))
	for _, rec := range containers {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b ContainerRecord) int {
		if a.Name < b.Name {
			return -1
		} else if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return recs, nil
}

// Removes a container record along with its state directory (rootfs
// included). Removing an absent container is not an error.
func (s *Store) RemoveContainer(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers, err := s.readContainers()
	if err != nil {
		return err
	}
	delete(containers, name)
	if err := s.writeContainers(containers); err != nil {
		return err
	}

	return os.RemoveAll(s.ContainerDir(name))
}

func (s *Store) containersPath() string {
	return filepath.Join(s.root, "containers", "containers.json")
}

// Reads the container index. A missing or empty file yields an empty index.
func (s *Store) readContainers() (map[string]ContainerRecord, error) {
	data, err := os.ReadFile(s.containersPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ContainerRecord{}, nil
		}
		return nil, err
	}

	containers := map[string]ContainerRecord{}
	if len(data) == 0 {
		return containers, nil
	}
	if err := json.Unmarshal(data, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

// Writes the container index atomically.
func (s *Store) writeContainers(containers map[string]ContainerRecord) error {
	return writeJSON(s.containersPath(), containers)
}
