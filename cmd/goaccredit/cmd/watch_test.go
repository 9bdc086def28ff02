package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residency-data/goaccredit/internal/config"
)

func TestWatchCommandStructure(t *testing.T) {
	assert.Equal(t, "watch", watchCmd.Use)
	assert.NotEmpty(t, watchCmd.Short)
	assert.Contains(t, watchCmd.Long, "supervise")
	assert.Contains(t, watchCmd.Long, "attach")

	mode, err := watchCmd.Flags().GetString("mode")
	assert.NoError(t, err)
	assert.Equal(t, "", mode)
}

func TestWorkerCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	originalHeadless := headless
	defer func() { headless = originalHeadless }()
	headless = true

	command, err := workerCommand(env.cfg)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(command), 6)
	assert.Equal(t, []string{"--config", GetConfigFile()}, command[1:3])
	assert.Contains(t, command, "--headless")
	assert.Contains(t, command, "resolve")
	assert.Contains(t, command, "--failed-only")
	assert.Equal(t, "--progress-events", command[len(command)-1])
}

func TestProgressSourcePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	src := progressSource(cfg)
	assert.Equal(t, cfg.Files.Failed, src.Failed)
	assert.Equal(t, cfg.Files.Success, src.Success)
	assert.Equal(t, cfg.Files.Full, src.Full)
	assert.Equal(t, cfg.Files.Source, src.Pending)
}

func TestRunWatch_InvalidMode(t *testing.T) {
	newTestEnv(t, nil)
	original := watchMode
	defer func() { watchMode = original }()
	watchMode = "poll"

	err := runWatch(watchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchdog.mode")
}

func TestRunWatch_AlreadyDone(t *testing.T) {
	env := newTestEnv(t, nil)
	env.write(t, env.cfg.Files.Failed, "accreditation_first_academic_year,program_id\n")
	env.write(t, env.cfg.Files.Success, "accreditation_first_academic_year,program_id\n2001 - 2002,1\n")
	original := watchMode
	defer func() { watchMode = original }()
	watchMode = "attach"

	require.NoError(t, runWatch(watchCmd, nil))
	assert.FileExists(t, env.cfg.Watchdog.LogOutput)
}
