package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/engine"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/infrastructure/remote"
)

func opsFixture() (*OperationService, *fakeDriverFactory, *fakeBackupRepo) {
	factory := newFakeDriverFactory()
	backups := &fakeBackupRepo{}
	return NewOperationService(factory, backups, logger.Nop()), factory, backups
}

func opsCreds(host string) map[uint]ports.SessionCredentials {
	return map[uint]ports.SessionCredentials{
		1: {Host: host, Port: 22, User: "admin", Password: "secret"},
	}
}

func opsTask(op string, payload map[string]any) engine.DeviceTask {
	return engine.DeviceTask{
		DeviceID:  1,
		Host:      "r1.example",
		Operation: op,
		Payload:   payload,
	}
}

func taskErrFrom(t *testing.T, err error) *engine.TaskError {
	t.Helper()
	var te *engine.TaskError
	require.ErrorAs(t, err, &te)
	return te
}

func TestTaskFuncMissingCredentials(t *testing.T) {
	svc, _, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", map[uint]ports.SessionCredentials{})

	_, err := fn(context.Background(), opsTask("collect", nil))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindValidation, te.Info.Kind)
}

func TestTaskFuncUnknownOperation(t *testing.T) {
	svc, _, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("format-disk", nil))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindValidation, te.Info.Kind)
}

func TestDialAuthFailureKind(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.dialErr["r1.example"] = fmt.Errorf("%w: permission denied", remote.ErrAuthentication)
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("collect", map[string]any{
		"commands": []string{"show version"},
	}))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindAuthFailure, te.Info.Kind)
	assert.Equal(t, engine.StageConnect, te.Info.Stage)
}

func TestDialUnreachableMapsToConnectTimeout(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.dialErr["r1.example"] = fmt.Errorf("%w: connection refused", remote.ErrConnection)
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("collect", map[string]any{
		"commands": []string{"show version"},
	}))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindConnectTimeout, te.Info.Kind)
	assert.Equal(t, engine.StageConnect, te.Info.Stage)
}

func TestOverallDeadlineDuringDialMapsToOverallTimeout(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.dialFn = func(ctx context.Context, host string) error {
		<-ctx.Done()
		return fmt.Errorf("%w: %v", remote.ErrConnection, ctx.Err())
	}

	runner, err := engine.NewRunner(engine.RunnerConfig{
		MaxConcurrency: 1,
		Policy:         engine.RetryPolicy{MaxAttempts: 1},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	task := opsTask("collect", map[string]any{"commands": []string{"show version"}})
	task.Timeouts.Connect = 10 * time.Second
	task.Timeouts.Overall = 50 * time.Millisecond

	results, err := runner.Run(context.Background(), []engine.DeviceTask{task},
		svc.TaskFunc("batch-1", opsCreds("r1.example")))
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NotNil(t, results[0].Error)
	assert.Equal(t, engine.KindOverallTimeout, results[0].Error.Kind)
	assert.Equal(t, engine.StageOverall, results[0].Error.Stage)
}

func TestCollectRunsEveryCommand(t *testing.T) {
	svc, _, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	data, err := fn(context.Background(), opsTask("collect", map[string]any{
		"commands": []string{"show version", "show inventory"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, data["command_count"])
	outputs, ok := data["outputs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "output of show version", outputs["show version"])
	assert.Equal(t, "output of show inventory", outputs["show inventory"])
}

func TestCollectRequiresCommands(t *testing.T) {
	svc, _, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("collect", nil))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindValidation, te.Info.Kind)

	_, err = fn(context.Background(), opsTask("collect", map[string]any{
		"commands": []any{"show version", 7},
	}))
	te = taskErrFrom(t, err)
	assert.Equal(t, engine.KindValidation, te.Info.Kind)
}

func TestBackupPersistsWithChecksum(t *testing.T) {
	svc, factory, backups := opsFixture()
	const config = "hostname r1\ninterface Gi0/0\n"
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		assert.Equal(t, "show running-config", cmd)
		return config, nil
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	data, err := fn(context.Background(), opsTask("backup", map[string]any{
		"platform": "cisco-ios",
	}))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(config))
	assert.Equal(t, hex.EncodeToString(sum[:]), data["checksum"])
	assert.Equal(t, len(config), data["size"])

	require.Len(t, backups.backups, 1)
	stored := backups.backups[0]
	assert.Equal(t, uint(1), stored.DeviceID)
	assert.Equal(t, "batch-1", stored.BatchID)
	assert.Equal(t, config, stored.Content)
}

func TestBackupRejectsEmptyConfig(t *testing.T) {
	svc, factory, backups := opsFixture()
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		return "", nil
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("backup", nil))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindCommandFailure, te.Info.Kind)
	assert.Empty(t, backups.backups)
}

func TestDeployUploadsAndApplies(t *testing.T) {
	svc, factory, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	data, err := fn(context.Background(), opsTask("deploy", map[string]any{
		"config":         "interface Gi0/1\n shutdown\n",
		"path":           "/tmp/staged.conf",
		"apply_commands": []string{"copy /tmp/staged.conf running-config"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/staged.conf", data["uploaded_path"])
	assert.Equal(t, 1, data["applied"])
	assert.Equal(t, []byte("interface Gi0/1\n shutdown\n"), factory.uploads["r1.example:/tmp/staged.conf"])
}

func TestDeployRequiresConfig(t *testing.T) {
	svc, _, _ := opsFixture()
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("deploy", nil))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindValidation, te.Info.Kind)
}

func TestTopologyProbeUsesPlatformDefaults(t *testing.T) {
	svc, factory, _ := opsFixture()
	var commands []string
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		commands = append(commands, cmd)
		return "neighbors", nil
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	data, err := fn(context.Background(), opsTask("topology-probe", map[string]any{
		"platform": "junos",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"show lldp neighbors"}, commands)

	tables, ok := data["neighbor_tables"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "neighbors", tables["show lldp neighbors"])
}

func TestOpsTimeoutKind(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	task := opsTask("collect", map[string]any{"commands": []string{"show tech-support"}})
	task.Timeouts.Ops = 30 * time.Millisecond

	_, err := fn(context.Background(), task)
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindOpsTimeout, te.Info.Kind)
	assert.Equal(t, engine.StageOps, te.Info.Stage)
}

func TestCommandFailureKind(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		return "", fmt.Errorf("%w: exit status 1", remote.ErrCommandFailed)
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	_, err := fn(context.Background(), opsTask("collect", map[string]any{
		"commands": []string{"bad command"},
	}))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindCommandFailure, te.Info.Kind)
	assert.True(t, errors.Is(te, remote.ErrCommandFailed))
}

func TestCancellationDuringCommand(t *testing.T) {
	svc, factory, _ := opsFixture()
	factory.runFn = func(ctx context.Context, host, cmd string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	fn := svc.TaskFunc("batch-1", opsCreds("r1.example"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fn(ctx, opsTask("collect", map[string]any{
		"commands": []string{"show version"},
	}))
	te := taskErrFrom(t, err)
	assert.Equal(t, engine.KindCancelled, te.Info.Kind)
}
