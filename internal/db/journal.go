package db

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/model"
	"github.com/blacktop/unicycle/pkg/solver"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
)

// Journal records the steps of one search session.
type Journal struct {
	db      Database
	Session *model.Session
}

// SessionInfo describes a new search.
type SessionInfo struct {
	Target   string
	Args     []string
	Observer string
	Alphabet []rune
	Chooser  string
	Width    int
	Pad      int
}

// NewJournal creates a new running session in d.
func NewJournal(d Database, info *SessionInfo) (*Journal, error) {
	s := &model.Session{
		ID:       uuid.NewString(),
		Target:   info.Target,
		Args:     shellquote.Join(info.Args...),
		Observer: info.Observer,
		Alphabet: string(info.Alphabet),
		Chooser:  info.Chooser,
		Width:    info.Width,
		Pad:      info.Pad,
		Status:   model.StatusRunning,
	}
	if err := d.CreateSession(s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &Journal{db: d, Session: s}, nil
}

// ResumeJournal reopens session id; id may be a unique prefix.
func ResumeJournal(d Database, id string) (*Journal, error) {
	s, err := FindSession(d, id)
	if err != nil {
		return nil, err
	}
	if s.Done() {
		return nil, fmt.Errorf("session %s already %s", s.ID, s.Status)
	}
	s.Status = model.StatusRunning
	s.Error = ""
	if err := d.SaveSession(s); err != nil {
		return nil, fmt.Errorf("failed to reopen session: %w", err)
	}
	return &Journal{db: d, Session: s}, nil
}

// FindSession returns the session whose id is or starts with id.
func FindSession(d Database, id string) (*model.Session, error) {
	s, err := d.GetSession(id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	sessions, err := d.ListSessions()
	if err != nil {
		return nil, err
	}
	var match string
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, id) {
			if match != "" {
				return nil, fmt.Errorf("session id %q is ambiguous", id)
			}
			match = s.ID
		}
	}
	if match == "" {
		return nil, errors.Wrapf(model.ErrNotFound, "session %q", id)
	}
	return d.GetSession(match)
}

// Args splits the stored target arguments.
func (j *Journal) Args() ([]string, error) {
	return shellquote.Split(j.Session.Args)
}

// RecordStep implements solver.Recorder.
func (j *Journal) RecordStep(step *solver.Step) error {
	ms := &model.Step{
		Depth:  step.Depth,
		Prefix: step.Prefix,
		Secret: step.Secret,
	}
	var chosen []rune
	for _, c := range step.Chosen {
		chosen = append(chosen, c.Symbol)
	}
	ms.Chosen = string(chosen)
	for _, e := range step.Scores {
		ms.Scores = append(ms.Scores, model.Score{
			Symbol:   string(e.Symbol),
			Count:    e.Score,
			TimedOut: e.TimedOut,
		})
	}
	if err := j.db.AddStep(j.Session.ID, ms); err != nil {
		return fmt.Errorf("failed to add step: %w", err)
	}
	j.Session.Steps = append(j.Session.Steps, *ms)

	reached := step.Prefix
	if step.Secret != "" {
		reached = step.Secret
	}
	if utf8.RuneCountInString(reached) > utf8.RuneCountInString(j.Session.Best) {
		j.Session.Best = reached
		return j.db.SaveSession(j.Session)
	}
	return nil
}

// Finish stores the outcome of the search.
func (j *Journal) Finish(res *solver.Result, searchErr error) error {
	s := j.Session
	if res != nil {
		s.Queries += res.Queries
		if utf8.RuneCountInString(res.Best) > utf8.RuneCountInString(s.Best) {
			s.Best = res.Best
		}
	}
	switch {
	case searchErr == nil && res != nil && res.Found:
		s.Status = model.StatusFound
		s.Secret = res.Secret
		s.Best = res.Secret
	case errors.Is(searchErr, solver.ErrNoCandidate):
		s.Status = model.StatusExhausted
	case isInterrupt(searchErr):
		s.Status = model.StatusInterrupted
	default:
		s.Status = model.StatusFailed
		if searchErr != nil {
			s.Error = searchErr.Error()
		}
	}
	log.WithFields(log.Fields{
		"session": s.ID,
		"status":  s.Status,
	}).Debug("Journal finished")
	return j.db.SaveSession(s)
}
