package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/engine"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/infrastructure/remote"
)

// OperationService implements the device task functions for every batch
// operation. All failures surface as *engine.TaskError; the engine runner is
// the only layer that interprets them.
type OperationService struct {
	factory ports.DriverFactory
	backups ports.BackupRepository
	logger  *logger.Logger
}

func NewOperationService(factory ports.DriverFactory, backups ports.BackupRepository, log *logger.Logger) *OperationService {
	return &OperationService{factory: factory, backups: backups, logger: log}
}

// TaskFunc builds the engine task function for one batch. Credentials are
// resolved before dispatch and captured here; task functions never touch
// the credential store during execution.
func (s *OperationService) TaskFunc(batchID string, creds map[uint]ports.SessionCredentials) engine.TaskFunc {
	return func(ctx context.Context, task engine.DeviceTask) (map[string]any, error) {
		c, ok := creds[task.DeviceID]
		if !ok {
			return nil, engine.NewTaskError(engine.KindValidation, engine.StageConnect,
				fmt.Sprintf("no credentials resolved for device %d", task.DeviceID))
		}

		drv := s.factory.New(c)
		defer drv.Close()

		if terr := s.dial(ctx, drv, task); terr != nil {
			return nil, terr
		}

		switch domain.Operation(task.Operation) {
		case domain.OperationCollect:
			return s.collect(ctx, drv, task)
		case domain.OperationBackup:
			return s.backup(ctx, drv, task, batchID)
		case domain.OperationDeploy:
			return s.deploy(ctx, drv, task)
		case domain.OperationTopologyProbe:
			return s.topologyProbe(ctx, drv, task)
		default:
			return nil, engine.NewTaskError(engine.KindValidation, engine.StageOps,
				fmt.Sprintf("unknown operation %q", task.Operation))
		}
	}
}

// dial runs the connect tier under its own timeout.
func (s *OperationService) dial(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask) *engine.TaskError {
	cctx := ctx
	if task.Timeouts.Connect > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, task.Timeouts.Connect)
		defer cancel()
	}

	start := time.Now()
	err := drv.Dial(cctx)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, remote.ErrAuthentication):
		return engine.WrapTaskError(engine.KindAuthFailure, engine.StageConnect,
			fmt.Sprintf("authentication rejected by %s", task.Host), err)
	case ctx.Err() == context.Canceled:
		return engine.WrapTaskError(engine.KindCancelled, engine.StageConnect, "connect aborted", err)
	case ctx.Err() == context.DeadlineExceeded:
		// Overall tier expired mid-handshake; let the runner attribute it
		// to that tier.
		return engine.WrapTaskError(engine.KindOverallTimeout, engine.StageOverall,
			fmt.Sprintf("session to %s cut off by the attempt deadline", task.Host), err)
	case cctx.Err() == context.DeadlineExceeded:
		return engine.WrapTaskError(engine.KindConnectTimeout, engine.StageConnect,
			fmt.Sprintf("no session to %s after %s", task.Host, time.Since(start).Round(time.Millisecond)), err)
	default:
		// Refused / unreachable failures share the connect-timeout kind:
		// both are transient connect-tier faults for retry purposes.
		return engine.WrapTaskError(engine.KindConnectTimeout, engine.StageConnect,
			fmt.Sprintf("connection to %s failed", task.Host), err)
	}
}

// runOp runs one command under the ops tier timeout.
func (s *OperationService) runOp(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask, cmd string) (string, *engine.TaskError) {
	octx := ctx
	if task.Timeouts.Ops > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, task.Timeouts.Ops)
		defer cancel()
	}

	out, err := drv.Run(octx, cmd)
	if err == nil {
		return out, nil
	}

	switch {
	case ctx.Err() == context.Canceled:
		return "", engine.WrapTaskError(engine.KindCancelled, engine.StageOps,
			fmt.Sprintf("command %q aborted", cmd), err)
	case ctx.Err() == context.DeadlineExceeded:
		// Overall tier expired; let the runner attribute it to that tier.
		return "", engine.WrapTaskError(engine.KindOverallTimeout, engine.StageOverall,
			fmt.Sprintf("command %q cut off by the attempt deadline", cmd), err)
	case octx.Err() == context.DeadlineExceeded:
		return "", engine.WrapTaskError(engine.KindOpsTimeout, engine.StageOps,
			fmt.Sprintf("command %q exceeded %s", cmd, task.Timeouts.Ops), err)
	case errors.Is(err, remote.ErrCommandFailed):
		return "", engine.WrapTaskError(engine.KindCommandFailure, engine.StageOps,
			fmt.Sprintf("command %q failed on device", cmd), err)
	default:
		return "", engine.WrapTaskError(engine.KindCommandFailure, engine.StageOps,
			fmt.Sprintf("command %q failed", cmd), err)
	}
}

func (s *OperationService) collect(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask) (map[string]any, error) {
	commands, err := payloadCommands(task.Payload, "commands")
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return nil, engine.NewTaskError(engine.KindValidation, engine.StageOps, "collect requires a non-empty command set")
	}

	outputs := make(map[string]any, len(commands))
	for _, cmd := range commands {
		out, terr := s.runOp(ctx, drv, task, cmd)
		if terr != nil {
			return nil, terr
		}
		outputs[cmd] = out
	}

	return map[string]any{"outputs": outputs, "command_count": len(commands)}, nil
}

func (s *OperationService) backup(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask, batchID string) (map[string]any, error) {
	cmd := payloadString(task.Payload, "command")
	if cmd == "" {
		cmd = backupCommand(payloadPlatform(task.Payload))
	}

	out, terr := s.runOp(ctx, drv, task, cmd)
	if terr != nil {
		return nil, terr
	}
	if out == "" {
		return nil, engine.NewTaskError(engine.KindCommandFailure, engine.StageOps,
			fmt.Sprintf("device returned an empty configuration for %q", cmd))
	}

	sum := sha256.Sum256([]byte(out))
	backup := &domain.Backup{
		DeviceID: task.DeviceID,
		BatchID:  batchID,
		Content:  out,
		Checksum: hex.EncodeToString(sum[:]),
		Size:     len(out),
	}
	if err := s.backups.Create(ctx, backup); err != nil {
		return nil, engine.WrapTaskError(engine.KindCommandFailure, engine.StageOps, "failed to persist backup", err)
	}

	s.logger.Infow("backup_captured",
		"device_id", task.DeviceID,
		"host", task.Host,
		"backup_id", backup.ID,
		"size", backup.Size,
	)

	return map[string]any{
		"backup_id": backup.ID,
		"checksum":  backup.Checksum,
		"size":      backup.Size,
	}, nil
}

func (s *OperationService) deploy(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask) (map[string]any, error) {
	content := payloadString(task.Payload, "config")
	if content == "" {
		return nil, engine.NewTaskError(engine.KindValidation, engine.StageOps, "deploy requires a rendered config payload")
	}

	remotePath := payloadString(task.Payload, "path")
	if remotePath == "" {
		remotePath = path.Join("/tmp", fmt.Sprintf("netfleet-deploy-%d.conf", task.DeviceID))
	}

	if err := drv.Upload(ctx, remotePath, []byte(content)); err != nil {
		if ctx.Err() != nil {
			return nil, engine.WrapTaskError(engine.KindCancelled, engine.StageOps, "upload aborted", err)
		}
		return nil, engine.WrapTaskError(engine.KindCommandFailure, engine.StageOps,
			fmt.Sprintf("failed to upload config to %s", remotePath), err)
	}

	applyCommands, err := payloadCommands(task.Payload, "apply_commands")
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(applyCommands))
	for _, cmd := range applyCommands {
		out, terr := s.runOp(ctx, drv, task, cmd)
		if terr != nil {
			return nil, terr
		}
		outputs[cmd] = out
	}

	return map[string]any{
		"uploaded_path": remotePath,
		"applied":       len(applyCommands),
		"outputs":       outputs,
	}, nil
}

func (s *OperationService) topologyProbe(ctx context.Context, drv ports.SessionDriver, task engine.DeviceTask) (map[string]any, error) {
	commands, err := payloadCommands(task.Payload, "commands")
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		commands = probeCommands(payloadPlatform(task.Payload))
	}

	tables := make(map[string]any, len(commands))
	for _, cmd := range commands {
		out, terr := s.runOp(ctx, drv, task, cmd)
		if terr != nil {
			return nil, terr
		}
		tables[cmd] = out
	}

	return map[string]any{"neighbor_tables": tables}, nil
}

func backupCommand(platform domain.Platform) string {
	switch platform {
	case domain.PlatformCiscoIOS:
		return "show running-config"
	case domain.PlatformJunos:
		return "show configuration | display set"
	default:
		return "cat /etc/config"
	}
}

func probeCommands(platform domain.Platform) []string {
	switch platform {
	case domain.PlatformCiscoIOS:
		return []string{"show lldp neighbors detail", "show cdp neighbors detail"}
	case domain.PlatformJunos:
		return []string{"show lldp neighbors"}
	default:
		return []string{"ip neigh show"}
	}
}

func payloadString(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func payloadPlatform(payload map[string]any) domain.Platform {
	return domain.Platform(payloadString(payload, "platform"))
}

func payloadCommands(payload map[string]any, key string) ([]string, *engine.TaskError) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, engine.NewTaskError(engine.KindValidation, engine.StageOps,
					fmt.Sprintf("payload %q must be a list of strings", key))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, engine.NewTaskError(engine.KindValidation, engine.StageOps,
			fmt.Sprintf("payload %q must be a list of strings", key))
	}
}
