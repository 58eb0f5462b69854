// Package model contains the search journal models for the database.
package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("no session found")

// Status of a search session.
const (
	StatusRunning     = "running"
	StatusFound       = "found"
	StatusExhausted   = "exhausted"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Session is one brute-force search against a target.
type Session struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Target   string `json:"target"`
	Args     string `json:"args,omitempty"` // shell quoted
	Observer string `json:"observer"`
	Alphabet string `json:"alphabet"`
	Chooser  string `json:"chooser"`
	Width    int    `json:"width"`
	Pad      int    `json:"pad,omitempty"`

	Status  string `json:"status"`
	Best    string `json:"best"`
	Secret  string `json:"secret,omitempty"`
	Queries int64  `json:"queries"`
	Error   string `json:"error,omitempty"`

	Steps []Step `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// Step is the outcome of scoring every symbol after one prefix.
type Step struct {
	gorm.Model
	SessionID string  `gorm:"index" json:"session_id"`
	Depth     int     `json:"depth"`
	Prefix    string  `json:"prefix"`
	Chosen    string  `json:"chosen"` // symbols picked to extend, in order
	Secret    string  `json:"secret,omitempty"`
	Scores    []Score `gorm:"foreignKey:StepID;constraint:OnDelete:CASCADE" json:"scores,omitempty"`
}

// Score is the side-channel value of one candidate symbol.
type Score struct {
	gorm.Model
	StepID   uint   `gorm:"index" json:"step_id"`
	Symbol   string `json:"symbol"`
	Count    int64  `json:"count"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// ResumePrefix is where an interrupted session picks up: the first chosen
// extension of the deepest recorded step. Later steps win ties.
func (s *Session) ResumePrefix() (string, bool) {
	if s.Secret != "" {
		return s.Secret, true
	}
	var (
		best  *Step
		found bool
	)
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.Chosen == "" {
			continue
		}
		if !found || st.Depth >= best.Depth {
			best = st
			found = true
		}
	}
	if !found {
		return "", false
	}
	first := []rune(best.Chosen)[0]
	return best.Prefix + string(first), true
}

// Done reports whether the session can no longer make progress.
func (s *Session) Done() bool {
	return s.Status == StatusFound || s.Status == StatusExhausted
}
