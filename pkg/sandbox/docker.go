package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const engineDocker = "docker"

// nodeEntrypoint wraps the harness for `node -e`. It prints one report line
// prefixed with a per-run nonce and exits before pending timers can write more.
// Everything lives inside a function scope, and the globals used for the report
// are captured before learner code runs, so the code cannot read the nonce or
// tamper with the encoder and writer.
const nodeEntrypoint = `(function () {
  const harness = ` + harnessSource + `;
  const encode = JSON.stringify;
  const stdout = process.stdout;
  const write = stdout.write;
  const exit = process.exit;
  const env = process.env;
  const source = env.PLAYGROUND_SOURCE || "";
  const nonce = env.PLAYGROUND_NONCE || "";
  const maxLines = parseInt(env.PLAYGROUND_MAX_LINES || "500", 10);
  delete env.PLAYGROUND_SOURCE;
  delete env.PLAYGROUND_NONCE;
  const logs = [];
  let truncated = false;
  const outcome = harness(source, function (level, line) {
    if (logs.length >= maxLines) { truncated = true; return; }
    logs[logs.length] = { level: level, line: line };
  });
  const report = encode({ logs: logs, ok: outcome.ok === true, error: "" + outcome.error, truncated: truncated });
  write.call(stdout, "\n" + nonce + report + "\n", function () { exit.call(process, 0); });
})();
`

// DockerConfig groups the container runner configuration values.
type DockerConfig struct {
	Host          string
	Image         string
	MemoryLimitMB int64
	CPUShares     int64
	Options       Options
}

// DockerRunner executes code under node inside a network-less, resource
// limited container.
type DockerRunner struct {
	client *client.Client
	cfg    DockerConfig
	opts   Options
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerRunner constructs a Docker backed runner.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	clientOpts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Image == "" {
		cfg.Image = "node:20-alpine"
	}
	opts := cfg.Options.normalised()

	return &DockerRunner{
		client: cli,
		cfg:    cfg,
		opts:   opts,
		tracer: otel.Tracer("github.com/noah-isme/script-playground-api/pkg/sandbox"),
		logger: opts.Logger.With().Str("component", "docker_runner").Logger(),
	}, nil
}

// Execute runs source in a throwaway container and decodes the harness report.
func (r *DockerRunner) Execute(parent context.Context, source string) (Result, error) {
	ctx, span := r.tracer.Start(parent, "sandbox.docker.execute", trace.WithAttributes(
		attribute.String("docker.image", r.cfg.Image),
	))
	defer span.End()

	nonce := "@@" + uuid.NewString() + "@@"
	env := []string{
		"PLAYGROUND_SOURCE=" + source,
		"PLAYGROUND_NONCE=" + nonce,
		"PLAYGROUND_MAX_LINES=" + strconv.Itoa(r.opts.MaxLogLines),
	}

	output, err := r.runContainer(ctx, env, []string{"node", "-e", nodeEntrypoint})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	buffer := newLogBuffer(r.opts)
	report, found := decodeHarnessReport(output.Stdout, nonce)
	for _, entry := range report.Logs {
		buffer.append(entry.Level, entry.Line)
	}
	if report.Truncated {
		buffer.truncated = true
	}

	var result Result
	switch {
	case output.TimedOut:
		result = timeoutResult(buffer, r.opts.Timeout, output.Duration)
		span.SetStatus(codes.Error, "execution timed out")
	case found:
		result = finish(buffer, report.OK, report.Error, output.Duration)
	default:
		message := strings.TrimSpace(output.Stderr)
		if message == "" {
			message = fmt.Sprintf("process exited with code %d", output.ExitCode)
		}
		result = finish(buffer, false, message, output.Duration)
	}

	recordOutcome(engineDocker, result)
	return result, nil
}

type containerOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

func (r *DockerRunner) runContainer(parent context.Context, env, cmd []string) (containerOutput, error) {
	ctx, cancel := context.WithTimeout(parent, r.opts.Timeout)
	defer cancel()

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    r.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: r.cfg.CPUShares,
		},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
	}

	config := &container.Config{
		Image:           r.cfg.Image,
		Cmd:             cmd,
		Env:             env,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	start := time.Now()
	output := containerOutput{}

	resp, err := r.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return output, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return output, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		output.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	output.Duration = time.Since(start)

	if waitErr != nil {
		switch {
		case parent.Err() != nil:
			return output, parent.Err()
		case errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			output.TimedOut = true
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
		default:
			return output, fmt.Errorf("container wait: %w", waitErr)
		}
	}

	logCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	logReader, err := r.client.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return output, nil
	}
	defer logReader.Close()

	stdout, stderr, err := splitDockerLogs(logReader)
	if err != nil {
		r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return output, nil
	}
	output.Stdout = stdout
	output.Stderr = stderr
	return output, nil
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the runner's underlying client.
func (r *DockerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

type harnessReport struct {
	Logs []struct {
		Level string `json:"level"`
		Line  string `json:"line"`
	} `json:"logs"`
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Truncated bool   `json:"truncated"`
}

// decodeHarnessReport finds the last nonce-prefixed line in stdout.
func decodeHarnessReport(stdout, nonce string) (harnessReport, bool) {
	var (
		report harnessReport
		found  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, nonce) {
			continue
		}
		var candidate harnessReport
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, nonce)), &candidate); err != nil {
			continue
		}
		report = candidate
		found = true
	}
	return report, found
}
