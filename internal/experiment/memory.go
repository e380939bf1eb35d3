package experiment

import (
	"context"
	"sync"
)

// InMemoryStore implements ExperimentReader and AssignmentStore in memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]Experiment
	assignments map[assignmentKey]Assignment
}

type assignmentKey struct {
	userID     string
	experiment string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		experiments: make(map[string]Experiment),
		assignments: make(map[assignmentKey]Assignment),
	}
}

// SaveExperiment stores or replaces an experiment definition.
func (s *InMemoryStore) SaveExperiment(_ context.Context, e Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Variants = append([]Variant(nil), e.Variants...)
	s.experiments[e.Name] = e
	return nil
}

// GetExperiment returns a copy of the named experiment.
func (s *InMemoryStore) GetExperiment(_ context.Context, name string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiments[name]
	if !ok {
		return nil, ErrExperimentNotFound
	}
	e.Variants = append([]Variant(nil), e.Variants...)
	return &e, nil
}

// GetAssignment returns the stored assignment or nil.
func (s *InMemoryStore) GetAssignment(_ context.Context, userID, experiment string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentKey{userID, experiment}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// CreateAssignment stores a unless an assignment already exists.
func (s *InMemoryStore) CreateAssignment(_ context.Context, a Assignment) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey{a.UserID, a.Experiment}
	if existing, ok := s.assignments[key]; ok {
		return existing, nil
	}
	s.assignments[key] = a
	return a, nil
}

// DeleteAssignment removes an assignment so the user is re-bucketed on next resolve.
func (s *InMemoryStore) DeleteAssignment(_ context.Context, userID, experiment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, assignmentKey{userID, experiment})
	return nil
}

// AssignmentCounts returns the number of assignments per variant for an experiment.
func (s *InMemoryStore) AssignmentCounts(experiment string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for key, a := range s.assignments {
		if key.experiment == experiment {
			counts[a.Variant]++
		}
	}
	return counts
}
