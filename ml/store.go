package ml

import (
	"sync"
	"sync/atomic"
)

// ModelStore caches the served artifact. The first successful load wins; a
// failed load is not cached, so serving recovers once training has run.
type ModelStore struct {
	path    string
	load    func(path string) (*Artifact, error)
	current atomic.Pointer[Predictor]
	mu      sync.Mutex
}

func NewModelStore(path string) *ModelStore {
	return &ModelStore{path: path, load: LoadArtifact}
}

func (s *ModelStore) Path() string {
	return s.path
}

func (s *ModelStore) Get() (*Predictor, error) {
	if p := s.current.Load(); p != nil {
		return p, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.current.Load(); p != nil {
		return p, nil
	}
	artifact, err := s.load(s.path)
	if err != nil {
		return nil, err
	}
	predictor, err := NewPredictor(artifact)
	if err != nil {
		return nil, err
	}
	s.current.Store(predictor)
	return predictor, nil
}

// Replace swaps in a newly trained artifact as a whole.
func (s *ModelStore) Replace(artifact *Artifact) error {
	predictor, err := NewPredictor(artifact)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(predictor)
	return nil
}

// Current returns the served predictor without loading, nil before the first load.
func (s *ModelStore) Current() *Predictor {
	return s.current.Load()
}
