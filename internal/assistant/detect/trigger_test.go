package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow-backend/internal/assistant/session"
)

type fakeDetector struct {
	calls   int
	samples [][]session.Message
	result  *Result
	err     error
}

func (d *fakeDetector) Detect(_ context.Context, messages []session.Message) (*Result, error) {
	d.calls++
	d.samples = append(d.samples, messages)
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func positive() *Result {
	return &Result{Recommendation: true, CandidateCount: 3, Summary: "3 candidate requirements"}
}

// sessionWithUserMessages builds a finalized session holding n user
// messages, each followed by an assistant reply.
func sessionWithUserMessages(n int) *session.Session {
	var history []session.Message
	for i := 0; i < n; i++ {
		history = append(history,
			session.Message{Role: session.RoleUser, Content: "we need audit logging"},
			session.Message{Role: session.RoleAssistant, Content: "noted"},
		)
	}
	return session.NewSeeded("conv", history)
}

func TestTrigger_NotBeforeThreshold(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(3)))
	assert.Equal(t, 0, detector.calls)
}

func TestTrigger_RunsAtThreshold(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	result := trigger.MaybeRun(context.Background(), sessionWithUserMessages(4))

	require.NotNil(t, result)
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, result, trigger.Pending())
}

func TestTrigger_PendingBlocksReRun(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(4)))
	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(20)))
	assert.Equal(t, 1, detector.calls)
}

func TestTrigger_DismissalRaisesThreshold(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(4)))
	trigger.Dismiss()
	assert.Nil(t, trigger.Pending())

	// Five further user messages are not enough after a dismissal.
	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(9)))
	assert.Equal(t, 1, detector.calls)

	// Six are.
	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(10)))
	assert.Equal(t, 2, detector.calls)
}

func TestTrigger_AcceptRestoresBaseThreshold(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(4)))
	trigger.Dismiss()
	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(10)))
	trigger.Accept()

	// Back to the base threshold of four new user messages.
	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(13)))
	require.NotNil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(14)))
}

func TestTrigger_NegativeResultDiscarded(t *testing.T) {
	detector := &fakeDetector{result: &Result{Recommendation: true, CandidateCount: 1}}
	trigger := NewTrigger(detector, nil)

	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(4)))
	assert.Nil(t, trigger.Pending())

	// The baseline still advanced: the run consumed the window.
	assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(5)))
	assert.Equal(t, 1, detector.calls)
}

func TestTrigger_EndpointFailureSwallowed(t *testing.T) {
	detector := &fakeDetector{err: errors.New("detection service unavailable")}
	trigger := NewTrigger(detector, nil)

	assert.NotPanics(t, func() {
		assert.Nil(t, trigger.MaybeRun(context.Background(), sessionWithUserMessages(4)))
	})
	assert.Nil(t, trigger.Pending())
}

func TestTrigger_SampleShape(t *testing.T) {
	detector := &fakeDetector{result: positive()}
	trigger := NewTrigger(detector, nil)

	history := []session.Message{
		{Role: session.RoleSystem, Content: "you are a consultant"},
		{Role: session.RoleUser, Content: "u1"},
		{Role: session.RoleAssistant, Content: ""},
		{Role: session.RoleUser, Content: "u2"},
		{Role: session.RoleAssistant, Content: "a2"},
		{Role: session.RoleUser, Content: "u3"},
		{Role: session.RoleAssistant, Content: "a3"},
		{Role: session.RoleUser, Content: "u4"},
	}
	s := session.NewSeeded("conv", history)

	require.NotNil(t, trigger.MaybeRun(context.Background(), s))
	require.Len(t, detector.samples, 1)

	var contents []string
	for _, m := range detector.samples[0] {
		contents = append(contents, m.Content)
	}
	// Last five non-empty user/assistant messages, in order.
	assert.Equal(t, []string{"u2", "a2", "u3", "a3", "u4"}, contents)
}
