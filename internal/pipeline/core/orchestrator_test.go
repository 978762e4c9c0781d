package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/artifacts"
)

// fakeStage records execution and cleanup order on a shared log.
type fakeStage struct {
	id      string
	err     error
	block   chan struct{}
	log     *[]string
	cleaned *[]string
}

func (s *fakeStage) ID() string   { return s.id }
func (s *fakeStage) Name() string { return s.id }

func (s *fakeStage) Execute(ctx context.Context, _ *State) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.log != nil {
		*s.log = append(*s.log, s.id)
	}
	return s.err
}

func (s *fakeStage) Cleanup(context.Context) error {
	if s.cleaned != nil {
		*s.cleaned = append(*s.cleaned, s.id)
	}
	return nil
}

func newTestState(jobID string) *State {
	return NewState(jobID, artifacts.NewLayout("/tmp/data"), nil)
}

func TestExecuteRunsStagesInOrder(t *testing.T) {
	var log []string
	stages := []Stage{
		&fakeStage{id: "transcribe", log: &log},
		&fakeStage{id: "analyse", log: &log},
		&fakeStage{id: "edit", log: &log},
	}
	o := NewOrchestrator(newTestState("job1"), stages, nil)

	state, err := o.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"transcribe", "analyse", "edit"}, log)
	assert.Equal(t, PhaseDone, state.Phase)
	assert.False(t, state.Failed())
}

func TestExecuteShortCircuitsOnFailure(t *testing.T) {
	var log, cleaned []string
	boom := fmt.Errorf("whisper crashed")
	stages := []Stage{
		&fakeStage{id: "transcribe", log: &log, cleaned: &cleaned},
		&fakeStage{id: "analyse", log: &log, cleaned: &cleaned, err: boom},
		&fakeStage{id: "edit", log: &log, cleaned: &cleaned},
	}
	o := NewOrchestrator(newTestState("job2"), stages, nil)

	state, err := o.Execute(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "analyse", stageErr.StageID)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"transcribe", "analyse"}, log, "edit never ran")
	assert.Equal(t, []string{"transcribe", "analyse"}, cleaned, "only executed stages are cleaned")
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.True(t, state.Failed())
}

func TestExecutePreFailedStateStaysFailed(t *testing.T) {
	var log []string
	st := newTestState("job7")
	preset := fmt.Errorf("segment download failed")
	st.Fail(preset)

	o := NewOrchestrator(st,
		[]Stage{&fakeStage{id: "transcribe", log: &log}}, nil)
	state, err := o.Execute(context.Background())

	assert.ErrorIs(t, err, preset)
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Empty(t, log, "no stage runs against a failed state")
}

func TestExecuteNoStages(t *testing.T) {
	o := NewOrchestrator(newTestState("job3"), nil, nil)
	_, err := o.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoStages)
}

func TestExecuteRejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	first := NewOrchestrator(newTestState("job4"),
		[]Stage{&fakeStage{id: "transcribe", block: block}}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := first.Execute(context.Background())
		assert.NoError(t, err)
	}()

	// Wait until the first run holds the job lock.
	require.Eventually(t, func() bool {
		activeExecutionsMu.Lock()
		defer activeExecutionsMu.Unlock()
		return activeExecutions["job4"]
	}, time.Second, 5*time.Millisecond)

	second := NewOrchestrator(newTestState("job4"),
		[]Stage{&fakeStage{id: "transcribe"}}, nil)
	_, err := second.Execute(context.Background())
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	close(block)
	wg.Wait()

	// The lock is released after completion.
	_, err = NewOrchestrator(newTestState("job4"),
		[]Stage{&fakeStage{id: "transcribe"}}, nil).Execute(context.Background())
	assert.NoError(t, err)
}

func TestExecuteCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(newTestState("job5"),
		[]Stage{&fakeStage{id: "transcribe"}}, nil)
	state, err := o.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, state.Failed())
}

func TestStateKeepsFirstError(t *testing.T) {
	st := newTestState("job6")
	first := fmt.Errorf("first")
	st.Fail(first)
	st.Fail(fmt.Errorf("second"))

	assert.Equal(t, first, st.Err)
	assert.Equal(t, PhaseFailed, st.Phase)
}
