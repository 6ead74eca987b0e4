// Package detect decides when recent conversation content should be
// checked for extractable structured requirements, and holds the pending
// result until the user accepts or dismisses it.
package detect

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/session"
)

const (
	// baseThreshold is how many new user messages must accumulate
	// before detection runs on a fresh session.
	baseThreshold = 4
	// raisedThreshold applies once the user has dismissed a detection
	// this session, so repeated prompts do not nag.
	raisedThreshold = 6
	// sampleSize bounds how many recent messages are sent to the
	// detection endpoint.
	sampleSize = 5
	// minCandidates is the smallest candidate count worth surfacing.
	minCandidates = 2
)

// Result is the detection endpoint's answer.
type Result struct {
	Recommendation bool   `json:"recommendation"`
	CandidateCount int    `json:"candidate_count"`
	Summary        string `json:"summary"`
}

// Detector calls the external detection endpoint.
type Detector interface {
	Detect(ctx context.Context, messages []session.Message) (*Result, error)
}

// Trigger is the per-session detection policy. Detection runs when
// enough new user messages accumulated since the last run, nothing is
// pending user action, and no stream is in flight. Dismissing a result
// raises the threshold; accepting one lowers it back.
//
// The baseline advances every time detection actually runs, whatever its
// outcome; accepting only resets the dismissal count, not the baseline.
type Trigger struct {
	detector Detector
	log      *logrus.Entry

	mu         sync.Mutex
	lastRunAt  int // user-message count when detection last ran
	dismissals int
	pending    *Result
}

// NewTrigger creates a trigger using the given detector.
func NewTrigger(detector Detector, log *logrus.Entry) *Trigger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Trigger{detector: detector, log: log}
}

// Pending returns the detection result awaiting user action, if any.
func (t *Trigger) Pending() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Dismiss discards the pending result and raises the re-trigger
// threshold for the rest of the session.
func (t *Trigger) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return
	}
	t.pending = nil
	t.dismissals++
}

// Accept clears the pending result after a successful save and restores
// the base threshold.
func (t *Trigger) Accept() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	t.dismissals = 0
}

// MaybeRun checks eligibility against the session and, when eligible,
// calls the detection endpoint with the last few non-empty messages.
// Returns the newly pending result on a positive detection, nil
// otherwise. Endpoint failures are swallowed: this path is supplementary
// and must never degrade the chat itself.
func (t *Trigger) MaybeRun(ctx context.Context, s *session.Session) *Result {
	if s.Busy() {
		return nil
	}

	userCount := s.UserMessageCount()

	t.mu.Lock()
	if t.pending != nil || userCount-t.lastRunAt < t.threshold() {
		t.mu.Unlock()
		return nil
	}
	t.lastRunAt = userCount
	t.mu.Unlock()

	sample := recentSample(s.Messages())
	if len(sample) == 0 {
		return nil
	}

	result, err := t.detector.Detect(ctx, sample)
	if err != nil {
		t.log.WithError(err).Debug("requirement detection failed, ignoring")
		return nil
	}
	if !result.Recommendation || result.CandidateCount < minCandidates {
		return nil
	}

	t.mu.Lock()
	t.pending = result
	t.mu.Unlock()
	return result
}

func (t *Trigger) threshold() int {
	if t.dismissals > 0 {
		return raisedThreshold
	}
	return baseThreshold
}

// recentSample picks the trailing non-empty user and assistant messages.
func recentSample(messages []session.Message) []session.Message {
	var sample []session.Message
	for i := len(messages) - 1; i >= 0 && len(sample) < sampleSize; i-- {
		m := messages[i]
		if m.Role == session.RoleSystem || m.Streaming || m.Content == "" {
			continue
		}
		sample = append(sample, m)
	}
	// Restore conversation order.
	for i, j := 0, len(sample)-1; i < j; i, j = i+1, j-1 {
		sample[i], sample[j] = sample[j], sample[i]
	}
	return sample
}
