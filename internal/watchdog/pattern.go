package watchdog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/residency-data/goaccredit/internal/logger"
)

// proc is the slice of a system process the controller needs.
type proc interface {
	PID() int32
	Cmdline(ctx context.Context) (string, error)
	Terminate(ctx context.Context) error
}

type systemProc struct{ p *process.Process }

func (s systemProc) PID() int32 { return s.p.Pid }

func (s systemProc) Cmdline(ctx context.Context) (string, error) {
	return s.p.CmdlineWithContext(ctx)
}

func (s systemProc) Terminate(ctx context.Context) error {
	return s.p.TerminateWithContext(ctx)
}

func systemProcs(ctx context.Context) ([]proc, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]proc, 0, len(ps))
	for _, p := range ps {
		out = append(out, systemProc{p})
	}
	return out, nil
}

// PatternController manages batch runs it did not start, matching them by
// command line. Used in attach mode.
type PatternController struct {
	pattern string
	command []string
	log     *logger.Logger
	self    int32
	procs   func(ctx context.Context) ([]proc, error)
	start   func(cmd *exec.Cmd) error
}

// NewPatternController creates a controller terminating processes whose
// command line contains pattern and restarting with command.
func NewPatternController(pattern string, command []string, log *logger.Logger) *PatternController {
	if log == nil {
		log = logger.NewDefault()
	}
	return &PatternController{
		pattern: pattern,
		command: command,
		log:     log,
		self:    int32(os.Getpid()),
		procs:   systemProcs,
		start:   startDetached,
	}
}

// Terminate sends SIGTERM to every matching process except this one.
func (c *PatternController) Terminate(ctx context.Context) (bool, error) {
	if c.pattern == "" {
		return false, errors.New("process pattern is empty")
	}
	ps, err := c.procs(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	var terminated int
	var errs []error
	for _, p := range ps {
		if p.PID() == c.self {
			continue
		}
		cmdline, err := p.Cmdline(ctx)
		if err != nil || !strings.Contains(cmdline, c.pattern) {
			continue
		}
		if err := p.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate pid %d: %w", p.PID(), err))
			continue
		}
		c.log.Infow("Terminated batch process", "pid", p.PID(), "cmdline", cmdline)
		terminated++
	}
	return terminated > 0, errors.Join(errs...)
}

// Spawn launches the restart command detached from this process.
func (c *PatternController) Spawn(ctx context.Context) error {
	if len(c.command) == 0 {
		return errors.New("restart command is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(c.command[0], c.command[1:]...)
	detach(cmd)
	if err := c.start(cmd); err != nil {
		return fmt.Errorf("start %q: %w", strings.Join(c.command, " "), err)
	}
	c.log.Infow("Restarted batch run", "command", strings.Join(c.command, " "))
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
