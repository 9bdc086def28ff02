//go:build !windows

package watchdog

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residency-data/goaccredit/internal/logger"
)

const helperEnv = "GOACCREDIT_WATCHDOG_HELPER"

// TestHelperProcess is not a real test; it stands in for a batch run.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	switch mode {
	case "events":
		fmt.Println(`{"type":"run_started","run_id":"r1","processed":0,"resolved":0,"failed":0}`)
		fmt.Println("not an event")
		fmt.Println(`{"type":"record_resolved","run_id":"r1","program_id":"1","status":"resolved","processed":1,"resolved":1,"failed":0}`)
		fmt.Println(`{"type":"record_resolved","run_id":"r1","program_id":"2","status":"failed","processed":2,"resolved":1,"failed":1}`)
		fmt.Println(`{"type":"run_finished","run_id":"r1","processed":2,"resolved":1,"failed":1,"remaining":1}`)
		os.Exit(0)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func helperSupervisor(t *testing.T, mode string, counts Counts) *Supervisor {
	t.Helper()
	t.Setenv(helperEnv, mode)
	s := NewSupervisor(
		[]string{os.Args[0], "-test.run=^TestHelperProcess$"},
		&scriptedSource{counts: []Counts{counts}},
		logger.NewNop(),
	)
	s.stderr = io.Discard
	return s
}

func TestSupervisor_CountsWorkerEvents(t *testing.T) {
	s := helperSupervisor(t, "events", Counts{Failed: 1, Succeeded: 1})
	assert.True(t, s.Idle())

	require.NoError(t, s.Spawn(context.Background()))
	s.Wait()

	assert.True(t, s.Idle())
	assert.Equal(t, 1, s.Runs())
	assert.NoError(t, s.LastExit())

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Processed)
	assert.Equal(t, 1, c.Failed)
}

func TestSupervisor_TerminateOwnChild(t *testing.T) {
	s := helperSupervisor(t, "hang", Counts{Failed: 3})

	require.NoError(t, s.Spawn(context.Background()))
	assert.False(t, s.Idle())
	assert.ErrorIs(t, s.Spawn(context.Background()), ErrRunActive)

	found, err := s.Terminate(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, s.Idle())
	assert.Error(t, s.LastExit())

	found, err = s.Terminate(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSupervisor_EmptyCommand(t *testing.T) {
	s := NewSupervisor(nil, &scriptedSource{counts: []Counts{{}}}, logger.NewNop())
	assert.Error(t, s.Spawn(context.Background()))
	assert.NoError(t, s.Close())
}
