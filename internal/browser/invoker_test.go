package browser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	createErr error
	runErr    error
	runText   string

	created  int
	released []string
	lastReq  RunRequest
	onStep   StepFunc
}

func (f *fakeClient) CreateSession(ctx context.Context, headless bool) (*Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &Session{ID: "fake-session", Status: "RUNNING"}, nil
}

func (f *fakeClient) Run(ctx context.Context, sessionID string, req RunRequest, onStep StepFunc) (*RunResult, error) {
	f.lastReq = req
	f.onStep = onStep
	if f.runErr != nil {
		return nil, f.runErr
	}
	if onStep != nil {
		if err := onStep(ctx, StepEvent{Index: 1, Action: "go_to_url"}); err != nil {
			return nil, err
		}
	}
	return &RunResult{Text: f.runText}, nil
}

func (f *fakeClient) ReleaseSession(ctx context.Context, sessionID string) error {
	f.released = append(f.released, sessionID)
	return errors.New("release always fails in this fake")
}

func TestInvoke_ReleasesSessionOnSuccess(t *testing.T) {
	fake := &fakeClient{runText: "done"}
	inv := NewInvoker(fake, true)

	text, err := inv.Invoke(context.Background(), "visit the homepage", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, []string{"fake-session"}, fake.released)
}

func TestInvoke_ReleasesSessionOnRunFailure(t *testing.T) {
	fake := &fakeClient{runErr: errors.New("browser crashed")}
	inv := NewInvoker(fake, true)

	_, err := inv.Invoke(context.Background(), "visit the homepage", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")
	assert.Equal(t, []string{"fake-session"}, fake.released, "session must be released even when the run fails")
}

func TestInvoke_ReleaseFailureDoesNotEscalate(t *testing.T) {
	// The fake's ReleaseSession always errors. Invoke must still succeed.
	fake := &fakeClient{runText: "ok"}
	inv := NewInvoker(fake, true)

	text, err := inv.Invoke(context.Background(), "task", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestInvoke_CreateSessionFailure(t *testing.T) {
	fake := &fakeClient{createErr: errors.New("pool exhausted")}
	inv := NewInvoker(fake, true)

	_, err := inv.Invoke(context.Background(), "task", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create browser session")
	assert.Empty(t, fake.released, "nothing to release when the session was never created")
}

func TestInvoke_SchemaPassedThrough(t *testing.T) {
	fake := &fakeClient{runText: "ok"}
	inv := NewInvoker(fake, false)

	schema := json.RawMessage(`{"type":"object","required":["is_working"]}`)
	_, err := inv.Invoke(context.Background(), "task", schema, nil)
	require.NoError(t, err)
	assert.Equal(t, schema, fake.lastReq.ResultSchema)
	assert.Equal(t, "task", fake.lastReq.Task)
}

func TestInvoke_ObserverFailureIsSwallowed(t *testing.T) {
	fake := &fakeClient{runText: "ok"}
	inv := NewInvoker(fake, true)

	observer := func(ctx context.Context, step StepEvent) error {
		return errors.New("screenshot disk full")
	}

	text, err := inv.Invoke(context.Background(), "task", nil, observer)
	require.NoError(t, err, "observer failures must not abort the run")
	assert.Equal(t, "ok", text)
}

func TestInvoke_NilObserverPassesNilToClient(t *testing.T) {
	fake := &fakeClient{runText: "ok"}
	inv := NewInvoker(fake, true)

	_, err := inv.Invoke(context.Background(), "task", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, fake.onStep)
}
