package watchdog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/residency-data/goaccredit/internal/batch"
	"github.com/residency-data/goaccredit/internal/logger"
)

// ErrRunActive is returned by Spawn while a supervised run is still alive.
var ErrRunActive = errors.New("batch run already active")

const terminateGrace = 10 * time.Second

// Supervisor owns the batch run as a child process and reads its progress
// events. It is both the ProgressSource and the ProcessController in
// supervise mode.
type Supervisor struct {
	command []string
	source  ProgressSource
	log     *logger.Logger
	stderr  io.Writer

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	processed int
	runs      int
	lastExit  error
}

// NewSupervisor creates a supervisor that launches command for each run.
// The command must emit JSON progress events on stdout.
func NewSupervisor(command []string, source ProgressSource, log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Supervisor{
		command: command,
		source:  source,
		log:     log,
		stderr:  os.Stderr,
	}
}

// Counts implements ProgressSource. Processed accumulates across runs.
func (s *Supervisor) Counts(ctx context.Context) (Counts, error) {
	c, err := s.source.Counts(ctx)
	if err != nil {
		return Counts{}, err
	}
	s.mu.Lock()
	c.Processed = s.processed
	s.mu.Unlock()
	return c, nil
}

// Idle implements Idler.
func (s *Supervisor) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd == nil
}

// Runs returns how many runs have been launched.
func (s *Supervisor) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// LastExit returns the exit error of the most recent finished run.
func (s *Supervisor) LastExit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExit
}

// Spawn implements ProcessController.
func (s *Supervisor) Spawn(ctx context.Context) error {
	if len(s.command) == 0 {
		return errors.New("worker command is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return ErrRunActive
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Stderr = s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	s.runs++
	run := s.runs
	log := s.log.WithFields(map[string]interface{}{"pid": cmd.Process.Pid, "launch": run})
	log.Info("Batch run launched")

	var g errgroup.Group
	g.Go(func() error { return s.readEvents(stdout, log) })

	go func() {
		readErr := g.Wait()
		waitErr := cmd.Wait()

		s.mu.Lock()
		s.cmd = nil
		s.lastExit = waitErr
		s.mu.Unlock()

		if readErr != nil {
			log.Warnw("Reading worker events failed", "error", readErr)
		}
		if waitErr != nil {
			log.Warnw("Batch run exited", "error", waitErr)
		} else {
			log.Info("Batch run exited")
		}
		close(done)
	}()
	return nil
}

// Terminate implements ProcessController. Only the supervised child is
// signalled; it is killed if it outlives the grace period.
func (s *Supervisor) Terminate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()
	if cmd == nil {
		return false, nil
	}

	if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return false, fmt.Errorf("signal worker: %w", err)
	}

	t := time.NewTimer(terminateGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.log.Warnw("Batch run ignored termination, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
	}
	return true, nil
}

// Wait blocks until the current run, if any, has exited.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close terminates any running child.
func (s *Supervisor) Close() error {
	_, err := s.Terminate(context.Background())
	return err
}

func (s *Supervisor) readEvents(r io.Reader, log *logger.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		ev, err := batch.DecodeEvent(sc.Bytes())
		if err != nil {
			log.Debugw("Worker output", "line", sc.Text())
			continue
		}
		s.handle(ev, log)
	}
	return sc.Err()
}

func (s *Supervisor) handle(ev batch.Event, log *logger.Logger) {
	switch ev.Type {
	case batch.EventRunStarted:
		log.Infow("Batch run started", "run", ev.RunID, "mode", ev.Mode, "work_set", ev.WorkSet)
	case batch.EventRecordResolved:
		s.mu.Lock()
		s.processed++
		s.mu.Unlock()
		log.Debugw("Record processed", "program_id", ev.ProgramID, "status", ev.Status, "year", ev.Year)
	case batch.EventRunFinished:
		log.Infow("Batch run finished",
			"run", ev.RunID,
			"resolved", ev.Resolved,
			"failed", ev.Failed,
			"remaining", ev.Remaining,
			"error", ev.Error,
		)
	}
}
