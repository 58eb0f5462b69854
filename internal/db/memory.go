package db

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/blacktop/unicycle/internal/model"
	"github.com/pkg/errors"
)

// Memory is a database that keeps sessions in memory and persists them to a
// gob file on Close.
type Memory struct {
	Sessions map[string]*model.Session
	Path     string

	mu     sync.Mutex
	nextID uint
}

// NewInMemory creates a new in-memory database.
func NewInMemory(path string) (Database, error) {
	if path == "" {
		return nil, errors.New("'path' is required")
	}
	return &Memory{
		Sessions: make(map[string]*model.Session),
		Path:     path,
	}, nil
}

// Connect loads the gob file if it exists.
func (m *Memory) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Open(m.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&m.Sessions); err != nil {
		return errors.Wrapf(err, "failed to decode %s", m.Path)
	}
	for _, s := range m.Sessions {
		for _, st := range s.Steps {
			if st.ID > m.nextID {
				m.nextID = st.ID
			}
		}
	}
	return nil
}

func (m *Memory) CreateSession(s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Sessions[s.ID]; exists {
		return errors.Errorf("session %s already exists", s.ID)
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	cp := *s
	cp.Steps = nil
	m.Sessions[s.ID] = &cp
	return nil
}

func (m *Memory) SaveSession(s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var steps []model.Step
	if old, ok := m.Sessions[s.ID]; ok {
		steps = old.Steps
	}
	s.UpdatedAt = time.Now()
	cp := *s
	cp.Steps = steps
	m.Sessions[s.ID] = &cp
	return nil
}

func (m *Memory) GetSession(id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, exists := m.Sessions[id]
	if !exists {
		return nil, model.ErrNotFound
	}
	cp := *s
	cp.Steps = append([]model.Step(nil), s.Steps...)
	return &cp, nil
}

func (m *Memory) ListSessions() ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*model.Session, 0, len(m.Sessions))
	for _, s := range m.Sessions {
		cp := *s
		cp.Steps = nil
		sessions = append(sessions, &cp)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *Memory) AddStep(sessionID string, step *model.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, exists := m.Sessions[sessionID]
	if !exists {
		return model.ErrNotFound
	}
	m.nextID++
	step.ID = m.nextID
	step.SessionID = sessionID
	for i := range step.Scores {
		step.Scores[i].StepID = step.ID
	}
	s.Steps = append(s.Steps, *step)
	return nil
}

func (m *Memory) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Sessions[id]; !exists {
		return model.ErrNotFound
	}
	delete(m.Sessions, id)
	return nil
}

// Close writes every session to Path.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Create(m.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(m.Sessions)
}
