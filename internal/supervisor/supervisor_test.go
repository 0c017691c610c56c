//go:build !windows

package supervisor

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/logbuffer"
	"github.com/imyashkale/mcphost/internal/models"
)

const (
	testWindow = 150 * time.Millisecond
	testGrace  = 400 * time.Millisecond
)

func shell(script string) *catalog.ProcessSpec {
	return &catalog.ProcessSpec{Command: "sh", Args: []string{"-c", script}}
}

func testCatalog() *catalog.Catalog {
	needsKey := &catalog.ProcessSpec{Command: "sleep", Args: []string{"30"}, RequiredEnv: []string{"API_KEY"}}
	withDefaults := shell(`echo "$GREETING $TARGET $NODE_ENV"; exec sleep 30`)
	withDefaults.Env = map[string]string{"GREETING": "hello", "TARGET": "default"}

	return catalog.New(
		catalog.ServerType{Name: "sleeper", Process: &catalog.ProcessSpec{Command: "sleep", Args: []string{"30"}}},
		catalog.ServerType{Name: "chatty", Process: shell(`echo ready; echo warming up >&2; exec sleep 30`)},
		catalog.ServerType{Name: "crasher", Process: shell(`echo dying >&2; exit 3`)},
		catalog.ServerType{Name: "quick-clean-exit", Process: shell(`exit 0`)},
		catalog.ServerType{Name: "short-lived", Process: shell(`sleep 0.5; exit 4`)},
		catalog.ServerType{Name: "stubborn", Process: shell(`trap '' TERM; sleep 30`)},
		catalog.ServerType{Name: "needs-key", Process: needsKey},
		catalog.ServerType{Name: "env-printer", Process: withDefaults},
		catalog.ServerType{Name: "missing-binary", Process: &catalog.ProcessSpec{Command: "/nonexistent/mcp-worker"}},
		catalog.ServerType{Name: "hosted-only", Hosted: true},
		catalog.ServerType{Name: "flooder", Process: shell(`sleep 0.3; i=0; while [ $i -lt 300 ]; do echo "line $i"; i=$((i+1)); done; exit 5`)},
		catalog.ServerType{Name: "leaves-grandchild", Process: shell(`sleep 0.3; sleep 3 & echo parent done; exit 6`)},
	)
}

func newTestSupervisor(t *testing.T, opts ...Option) *Supervisor {
	t.Helper()
	opts = append([]Option{WithStartConfirmWindow(testWindow), WithStopGracePeriod(testGrace)}, opts...)
	s := New(testCatalog(), logbuffer.New(logbuffer.DefaultCapacity), opts...)
	t.Cleanup(func() { s.StopAll() })
	return s
}

func hasLog(entries []models.LogEntry, level, substr string) bool {
	for _, e := range entries {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestStartAndStop(t *testing.T) {
	s := newTestSupervisor(t)

	st, err := s.StartServer("srv-1", "sleeper", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessRunning, st.Status)
	assert.Greater(t, st.PID, 0)
	assert.Equal(t, "sleeper", st.ServerType)
	require.NotNil(t, st.StartedAt)

	assert.Equal(t, models.ProcessRunning, s.Status("srv-1").Status)
	assert.Equal(t, 1, s.Count())
	require.Len(t, s.ListRunning(), 1)

	require.NoError(t, s.StopServer("srv-1"))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, models.ProcessStopped, s.Status("srv-1").Status)
	assert.True(t, hasLog(s.Logs("srv-1", 0), models.LevelInfo, "Process stopped"))

	err = s.StopServer("srv-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStartRejectsSecondStart(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "sleeper", nil)
	require.NoError(t, err)

	_, err = s.StartServer("srv-1", "sleeper", nil)
	assert.ErrorIs(t, err, models.ErrAlreadyRunning)
	assert.Equal(t, 1, s.Count())
}

func TestConcurrentStartsSpawnOnce(t *testing.T) {
	s := newTestSupervisor(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var started, rejected int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.StartServer("srv-1", "sleeper", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, models.ErrAlreadyRunning):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 1, s.Count())
}

func TestStartConfigErrors(t *testing.T) {
	s := newTestSupervisor(t)

	tests := []struct {
		name string
		typ  string
		env  map[string]string
	}{
		{name: "unknown type", typ: "does-not-exist"},
		{name: "type without worker", typ: "hosted-only"},
		{name: "missing required variable", typ: "needs-key"},
		{name: "empty required variable", typ: "needs-key", env: map[string]string{"API_KEY": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StartServer("srv-cfg", tt.typ, tt.env)
			assert.ErrorIs(t, err, models.ErrConfig)
			assert.Equal(t, 0, s.Count())
			assert.Empty(t, s.Logs("srv-cfg", 0))
		})
	}
}

func TestRequiredVariablePresentStarts(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "needs-key", map[string]string{"API_KEY": "secret"})
	require.NoError(t, err)
}

func TestExitDuringWindowIsProcessFailure(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "crasher", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProcessFailure)

	var perr *models.ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.ExitCode)
	assert.Equal(t, 0, s.Count())

	require.Eventually(t, func() bool {
		return hasLog(s.Logs("srv-1", 0), models.LevelError, "dying")
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, hasLog(s.Logs("srv-1", 0), models.LevelError, "exited during startup"))
}

func TestCleanExitDuringWindowIsProcessFailure(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "quick-clean-exit", nil)
	assert.ErrorIs(t, err, models.ErrProcessFailure)
	assert.Equal(t, 0, s.Count())
}

func TestSpawnErrorIsProcessFailure(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "missing-binary", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProcessFailure)

	var perr *models.ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, -1, perr.ExitCode)
	assert.NotNil(t, perr.Err)
	assert.Equal(t, 0, s.Count())
	assert.True(t, hasLog(s.Logs("srv-1", 0), models.LevelError, "Failed to start process"))
}

func TestOutputCapturedByStream(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "chatty", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		logs := s.Logs("srv-1", 0)
		return hasLog(logs, models.LevelInfo, "ready") && hasLog(logs, models.LevelError, "warming up")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEnvironmentLayering(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "env-printer", map[string]string{"TARGET": "caller", "NODE_ENV": "development"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hasLog(s.Logs("srv-1", 0), models.LevelInfo, "hello caller production")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnexpectedExitReleasesHandle(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "short-lived", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Count() == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, models.ProcessStopped, s.Status("srv-1").Status)
	assert.True(t, hasLog(s.Logs("srv-1", 0), models.LevelError, "exited unexpectedly: code 4"))

	// no automatic restart
	time.Sleep(testWindow * 2)
	assert.Equal(t, 0, s.Count())
}

func TestStopEscalatesToKill(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "stubborn", nil)
	require.NoError(t, err)

	begin := time.Now()
	require.NoError(t, s.StopServer("srv-1"))
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, testGrace)
	assert.Less(t, elapsed, testGrace+3*time.Second)
	assert.Equal(t, 0, s.Count())
}

func TestConcurrentStopsShareOneExit(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "stubborn", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.StopServer("srv-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, models.ErrNotFound)
		}
	}
	assert.Equal(t, 0, s.Count())
}

func TestStopDuringStartupFailsStart(t *testing.T) {
	s := newTestSupervisor(t, WithStartConfirmWindow(2*time.Second))

	result := make(chan error, 1)
	go func() {
		_, err := s.StartServer("srv-1", "sleeper", nil)
		result <- err
	}()

	require.Eventually(t, func() bool {
		return s.Status("srv-1").PID > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.StopServer("srv-1"))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, models.ErrProcessFailure)
		assert.ErrorIs(t, err, ErrStoppedDuringStartup)
	case <-time.After(3 * time.Second):
		t.Fatal("start did not resolve after stop")
	}
}

func TestRestartResetsLogs(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartServer("srv-1", "chatty", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.logs.Len("srv-1") >= 2 }, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, s.StopServer("srv-1"))

	_, err = s.StartServer("srv-1", "sleeper", nil)
	require.NoError(t, err)
	assert.False(t, hasLog(s.Logs("srv-1", 0), models.LevelInfo, "ready"))

	s.ClearLogs("srv-1")
	assert.Empty(t, s.Logs("srv-1", 0))
}

func TestStopAll(t *testing.T) {
	s := newTestSupervisor(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.StartServer(id, "sleeper", nil)
		require.NoError(t, err)
	}
	_, err := s.StartServer("d", "stubborn", nil)
	require.NoError(t, err)

	results := s.StopAll()
	require.Len(t, results, 4)
	for _, r := range results {
		assert.NoError(t, r.Err, r.ServerId)
	}
	assert.Equal(t, 0, s.Count())
}

func TestExitEntryFollowsAllOutput(t *testing.T) {
	for round := 0; round < 5; round++ {
		s := newTestSupervisor(t)
		_, err := s.StartServer("srv-1", "flooder", nil)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			entries := s.Logs("srv-1", logbuffer.DefaultCapacity)
			return len(entries) > 0 && strings.Contains(entries[len(entries)-1].Message, "exited unexpectedly")
		}, 5*time.Second, 20*time.Millisecond)

		entries := s.Logs("srv-1", logbuffer.DefaultCapacity)
		require.Len(t, entries, 301, "round %d", round)
		assert.Equal(t, "line 299", entries[299].Message)
		assert.Equal(t, "Process exited unexpectedly: code 5", entries[300].Message)
	}
}

func TestInheritedPipesDoNotBlockExit(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.StartServer("srv-1", "leaves-grandchild", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Count() == 0 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return hasLog(s.Logs("srv-1", 10), models.LevelError, "exited unexpectedly: code 6")
	}, time.Second, 20*time.Millisecond)
	assert.True(t, hasLog(s.Logs("srv-1", 10), models.LevelInfo, "parent done"))
}
