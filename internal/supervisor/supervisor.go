// Package supervisor spawns, watches and stops the external worker processes
// backing some server types. Each process moves through
// starting -> running -> stopping -> stopped, or ends in failed when it
// exits on its own.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/logbuffer"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
)

const (
	DefaultStartConfirmWindow = 2 * time.Second
	DefaultStopGracePeriod    = 5 * time.Second

	// outputDrainTimeout bounds the wait for buffered output after exit.
	// A grandchild that inherited the pipes can keep them open forever.
	outputDrainTimeout = time.Second
)

// ErrStoppedDuringStartup is the cause of a start that was cancelled by a stop
var ErrStoppedDuringStartup = errors.New("stopped during startup")

// execCommand is swapped in tests
var execCommand = exec.Command

// Option configures a Supervisor
type Option func(*Supervisor)

// WithStartConfirmWindow sets how long a new process must survive to count as started
func WithStartConfirmWindow(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.startWindow = d
		}
	}
}

// WithStopGracePeriod sets the wait between SIGTERM and SIGKILL
func WithStopGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.gracePeriod = d
		}
	}
}

// Supervisor owns at most one worker process per server id
type Supervisor struct {
	catalog     *catalog.Catalog
	logs        *logbuffer.Buffer
	startWindow time.Duration
	gracePeriod time.Duration

	mu        sync.Mutex
	processes map[string]*managedProcess
}

// New creates a supervisor spawning commands from cat and capturing output into logs
func New(cat *catalog.Catalog, logs *logbuffer.Buffer, opts ...Option) *Supervisor {
	s := &Supervisor{
		catalog:     cat,
		logs:        logs,
		startWindow: DefaultStartConfirmWindow,
		gracePeriod: DefaultStopGracePeriod,
		processes:   make(map[string]*managedProcess),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartServer spawns the worker of serverType for serverID and waits for the
// start confirmation window. Any exit inside the window is a ProcessFailure.
func (s *Supervisor) StartServer(serverID, serverType string, env map[string]string) (*models.ProcessStatus, error) {
	spec, err := s.catalog.ProcessFor(serverType, env)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.processes[serverID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("server %s: %w", serverID, models.ErrAlreadyRunning)
	}
	p := newManagedProcess(serverID, serverType)
	s.processes[serverID] = p
	s.mu.Unlock()

	fields := map[string]interface{}{
		"server_id":   serverID,
		"server_type": serverType,
	}

	s.logs.Reset(serverID)

	if err := s.spawn(p, spec, env); err != nil {
		s.release(p)
		p.transition(stateFailed, stateStarting, stateStopping)
		close(p.exited)

		s.logs.Append(serverID, models.LevelError, fmt.Sprintf("Failed to start process: %v", err))
		logger.WithComponent("supervisor").WithFields(fields).WithField("error", err.Error()).Error("Failed to spawn worker process")
		return nil, &models.ProcessError{ServerId: serverID, ExitCode: -1, Err: err}
	}

	fields["pid"] = p.pid
	logger.WithComponent("supervisor").WithFields(fields).Info("Worker process spawned")

	timer := time.NewTimer(s.startWindow)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil, s.startFailure(p, fields)

	case <-timer.C:
		if !p.transition(stateRunning, stateStarting) {
			// a stop or an exit raced the window; report once the process is gone
			<-p.exited
			return nil, s.startFailure(p, fields)
		}
	}

	logger.WithComponent("supervisor").WithFields(fields).Info("Worker process running")
	st := p.status()
	return &st, nil
}

func (s *Supervisor) startFailure(p *managedProcess, fields map[string]interface{}) error {
	perr := p.failure()
	if p.getState() == stateStopped {
		perr.Err = ErrStoppedDuringStartup
	}
	logger.WithComponent("supervisor").WithFields(fields).WithField("error", perr.Error()).Warn("Worker process exited during startup")
	return perr
}

func (s *Supervisor) spawn(p *managedProcess, spec *catalog.ProcessSpec, env map[string]string) error {
	defer close(p.spawned)

	cmd := execCommand(spec.Command, spec.Args...)
	cmd.Env = buildEnvironment(spec.Env, env)
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return err
	}

	// the child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	p.mu.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.readers = []io.Closer{stdoutR, stderrR}
	p.output.Add(2)
	go s.capture(p, stdoutR, models.LevelInfo)
	go s.capture(p, stderrR, models.LevelError)
	go s.wait(p)

	return nil
}

// capture turns each output line into a log entry stamped at read time
func (s *Supervisor) capture(p *managedProcess, r io.ReadCloser, level string) {
	defer p.output.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		s.logs.Append(p.serverID, level, line)
	}
}

// drainOutput waits until both scanners have consumed everything the
// process wrote, so the exit entry is the last one logged for this run.
func (p *managedProcess) drainOutput() {
	drained := make(chan struct{})
	go func() {
		p.output.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(outputDrainTimeout):
		for _, r := range p.readers {
			_ = r.Close()
		}
		<-drained
	}
}

// wait is the single waiter of a process. It records the exit, releases the
// handle and only then closes exited.
func (s *Supervisor) wait(p *managedProcess) {
	err := p.cmd.Wait()
	p.drainOutput()

	p.mu.Lock()
	p.exitState = p.cmd.ProcessState
	p.exitErr = err
	prev := p.state
	if prev == stateStopping {
		p.state = stateStopped
	} else {
		p.state = stateFailed
	}
	p.mu.Unlock()

	s.release(p)

	perr := p.failure()
	fields := map[string]interface{}{
		"server_id":   p.serverID,
		"server_type": p.serverType,
		"pid":         p.pid,
		"exit_code":   perr.ExitCode,
	}

	switch prev {
	case stateStopping:
		s.logs.Append(p.serverID, models.LevelInfo, "Process stopped")
		logger.WithComponent("supervisor").WithFields(fields).Info("Worker process stopped")
	case stateRunning:
		s.logs.Append(p.serverID, models.LevelError, fmt.Sprintf("Process exited unexpectedly: %s", describeExit(perr)))
		logger.WithComponent("supervisor").WithFields(fields).Warn("Worker process exited unexpectedly")
	default:
		s.logs.Append(p.serverID, models.LevelError, fmt.Sprintf("Process exited during startup: %s", describeExit(perr)))
	}

	close(p.exited)
}

func describeExit(perr *models.ProcessError) string {
	if perr.Signal != "" {
		return "signal " + perr.Signal
	}
	return fmt.Sprintf("code %d", perr.ExitCode)
}

func (s *Supervisor) release(p *managedProcess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processes[p.serverID] == p {
		delete(s.processes, p.serverID)
	}
}

// StopServer sends SIGTERM, escalates to SIGKILL after the grace period and
// returns once the process has exited. Concurrent callers share one stop.
func (s *Supervisor) StopServer(serverID string) error {
	s.mu.Lock()
	p, ok := s.processes[serverID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %s: %w", serverID, models.ErrNotFound)
	}

	p.stopOnce.Do(func() { s.stop(p) })
	<-p.exited
	return nil
}

func (s *Supervisor) stop(p *managedProcess) {
	<-p.spawned

	p.mu.Lock()
	if p.cmd == nil || (p.state != stateStarting && p.state != stateRunning) {
		p.mu.Unlock()
		return
	}
	p.state = stateStopping
	proc := p.cmd.Process
	p.mu.Unlock()

	fields := map[string]interface{}{
		"server_id": p.serverID,
		"pid":       proc.Pid,
	}
	logger.WithComponent("supervisor").WithFields(fields).Info("Stopping worker process")

	if err := terminate(proc); err != nil {
		logger.WithComponent("supervisor").WithFields(fields).WithField("error", err.Error()).Warn("Failed to send SIGTERM")
	}

	grace := time.NewTimer(s.gracePeriod)
	defer grace.Stop()

	select {
	case <-p.exited:
	case <-grace.C:
		logger.WithComponent("supervisor").WithFields(fields).Warn("Worker did not exit within grace period, sending SIGKILL")
		if err := kill(proc); err != nil {
			logger.WithComponent("supervisor").WithFields(fields).WithField("error", err.Error()).Error("Failed to send SIGKILL")
		}
		<-p.exited
	}
}

// StopAll stops every process concurrently. A process that exits on its own
// while the stop is in flight counts as stopped.
func (s *Supervisor) StopAll() []models.StopResult {
	s.mu.Lock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	results := make([]models.StopResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			err := s.StopServer(id)
			if errors.Is(err, models.ErrNotFound) {
				err = nil
			}
			results[i] = models.StopResult{ServerId: id, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Status reports the runtime state of serverID; absent processes are "stopped"
func (s *Supervisor) Status(serverID string) models.ProcessStatus {
	s.mu.Lock()
	p, ok := s.processes[serverID]
	s.mu.Unlock()
	if !ok {
		return models.ProcessStatus{ServerId: serverID, Status: models.ProcessStopped}
	}
	return p.status()
}

// ListRunning returns the status of every live process ordered by server id
func (s *Supervisor) ListRunning() []models.ProcessStatus {
	s.mu.Lock()
	procs := make([]*managedProcess, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	out := make([]models.ProcessStatus, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerId < out[j].ServerId })
	return out
}

// ValidateEnvironment reports whether a worker of serverType could be started with env
func (s *Supervisor) ValidateEnvironment(serverType string, env map[string]string) error {
	return s.catalog.ValidateEnvironment(serverType, env)
}

// Logs returns the most recent captured lines of serverID
func (s *Supervisor) Logs(serverID string, limit int) []models.LogEntry {
	return s.logs.Read(serverID, limit)
}

// ClearLogs drops everything captured for serverID
func (s *Supervisor) ClearLogs(serverID string) {
	s.logs.Delete(serverID)
}

// Count returns the number of live process handles
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

// buildEnvironment layers the parent environment, type defaults, caller
// values and NODE_ENV=production, in that order.
func buildEnvironment(defaults, env map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	merged["NODE_ENV"] = "production"

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
