package supervisor

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/imyashkale/mcphost/internal/models"
)

// processState is the lifecycle of one worker process
type processState int

const (
	stateStarting processState = iota
	stateRunning
	stateStopping
	stateStopped
	stateFailed
)

func (s processState) String() string {
	switch s {
	case stateStarting:
		return models.ProcessStarting
	case stateRunning:
		return models.ProcessRunning
	case stateStopping:
		return models.ProcessStopping
	case stateStopped:
		return models.ProcessStopped
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// managedProcess is the handle of a spawned (or spawning) worker.
// spawned closes once the spawn attempt finished; exited closes once the
// process is gone and the handle has been released.
type managedProcess struct {
	serverID   string
	serverType string

	mu        sync.Mutex
	state     processState
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exitState *os.ProcessState
	exitErr   error

	// output tracks the stdout and stderr scanners; readers are their pipes
	output  sync.WaitGroup
	readers []io.Closer

	spawned  chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func newManagedProcess(serverID, serverType string) *managedProcess {
	return &managedProcess{
		serverID:   serverID,
		serverType: serverType,
		state:      stateStarting,
		spawned:    make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

func (p *managedProcess) getState() processState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transition moves to next only from one of the allowed states
func (p *managedProcess) transition(next processState, from ...processState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range from {
		if p.state == s {
			p.state = next
			return true
		}
	}
	return false
}

func (p *managedProcess) status() models.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := models.ProcessStatus{
		ServerId:   p.serverID,
		Status:     p.state.String(),
		PID:        p.pid,
		ServerType: p.serverType,
	}
	if !p.startedAt.IsZero() {
		startedAt := p.startedAt
		st.StartedAt = &startedAt
	}
	return st
}

// failure converts the recorded exit into a ProcessError
func (p *managedProcess) failure() *models.ProcessError {
	p.mu.Lock()
	defer p.mu.Unlock()

	perr := &models.ProcessError{ServerId: p.serverID, ExitCode: -1}
	if p.exitState != nil {
		perr.ExitCode = p.exitState.ExitCode()
		perr.Signal = exitSignal(p.exitState)
	}
	if p.exitState == nil && p.exitErr != nil {
		perr.Err = p.exitErr
	}
	return perr
}
