/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/blacktop/unicycle/internal/db"
	"github.com/blacktop/unicycle/pkg/solver"
	"gopkg.in/yaml.v3"
)

type reportScore struct {
	Symbol   string `yaml:"symbol"`
	Count    int64  `yaml:"count,omitempty"`
	TimedOut bool   `yaml:"timed_out,omitempty"`
}

type reportStep struct {
	Depth  int           `yaml:"depth"`
	Prefix string        `yaml:"prefix"`
	Chosen string        `yaml:"chosen,omitempty"`
	Scores []reportScore `yaml:"scores"`
}

type report struct {
	Session string       `yaml:"session,omitempty"`
	Date    time.Time    `yaml:"date"`
	Target  string       `yaml:"target"`
	Args    []string     `yaml:"args,omitempty"`
	Found   bool         `yaml:"found"`
	Secret  string       `yaml:"secret,omitempty"`
	Input   string       `yaml:"input,omitempty"`
	Best    string       `yaml:"best"`
	Steps   int          `yaml:"steps"`
	Rides   int64        `yaml:"rides"`
	Error   string       `yaml:"error,omitempty"`
	Trace   []reportStep `yaml:"trace,omitempty"`
}

func newReport(session string, t *target, res *solver.Result, searchErr error, j *db.Journal) *report {
	r := &report{
		Session: session,
		Date:    time.Now().UTC(),
		Target:  t.Path,
		Args:    t.Args,
	}
	if res != nil {
		r.Found = res.Found
		r.Secret = res.Secret
		r.Input = res.Input
		r.Best = res.Best
		r.Steps = res.Steps
		r.Rides = res.Queries
	}
	if searchErr != nil {
		r.Error = searchErr.Error()
	}
	if j != nil {
		for _, st := range j.Session.Steps {
			rs := reportStep{Depth: st.Depth, Prefix: st.Prefix, Chosen: st.Chosen}
			for _, sc := range st.Scores {
				rs.Scores = append(rs.Scores, reportScore{Symbol: sc.Symbol, Count: sc.Count, TimedOut: sc.TimedOut})
			}
			r.Trace = append(r.Trace, rs)
		}
	}
	return r
}

func writeReport(path string, r *report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %v", err)
	}
	return os.WriteFile(path, data, 0o644)
}
