package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soocke/pixel-watch-go/config"
	"github.com/soocke/pixel-watch-go/domain/dispatch"
	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

// absentLocator never finds a window, keeping monitors idle.
type absentLocator struct{}

func (absentLocator) FindExact(string, string) (platform.Handle, error) {
	return 0, platform.ErrWindowNotFound
}
func (absentLocator) FindPartial(string) (platform.Handle, error) {
	return 0, platform.ErrWindowNotFound
}
func (absentLocator) Rect(platform.Handle) (platform.Rect, error) {
	return platform.Rect{}, platform.ErrWindowNotFound
}
func (absentLocator) IsValid(platform.Handle) bool { return false }
func (absentLocator) Title(platform.Handle) string { return "" }

type noCapture struct{}

func (noCapture) Capture(platform.Handle) (*image.RGBA, error) { return nil, errors.New("no window") }

type noDispatch struct{}

func (noDispatch) Dispatch(context.Context, platform.Handle, rules.Rule, image.Rectangle) dispatch.Result {
	return dispatch.Result{}
}

func testFactory(hooks monitor.Hooks) Factory {
	eng := recognition.NewEngine(nil, recognition.Options{})
	return func(t rules.Target) *monitor.Monitor {
		return monitor.New(nil, t, monitor.Deps{
			Locator:    absentLocator{},
			Capture:    noCapture{},
			Recognizer: eng,
			Dispatcher: noDispatch{},
			Hooks:      hooks,
		}, monitor.Options{PausePoll: 5 * time.Millisecond})
	}
}

func target(name string) rules.Target {
	return rules.Target{
		Name:        name,
		WindowTitle: name + " window",
		Interval:    5 * time.Millisecond,
		Rules: []rules.Rule{{
			Pattern:   "ok",
			Threshold: 0.8,
			Actions:   []rules.Action{{Params: rules.Key{Code: 0x0D}}},
		}},
	}
}

func TestCreateMonitors_DuplicateNameSkipped(t *testing.T) {
	c := New(nil, testFactory(nil), Options{})
	first, second := target("notepad"), target("notepad")
	second.Rules[0].Threshold = 0.5

	assert.Equal(t, 1, c.CreateMonitors([]rules.Target{first, second}))
	m, ok := c.Get("notepad")
	require.True(t, ok)
	assert.Equal(t, 0.8, m.Target().Rules[0].Threshold, "first rule set wins")

	assert.Equal(t, 0, c.CreateMonitors([]rules.Target{second}), "existing monitor is kept")
}

func TestCreateMonitors_InvalidAndLimit(t *testing.T) {
	c := New(nil, testFactory(nil), Options{MaxMonitors: 2})
	bad := target("bad")
	bad.WindowTitle = ""

	n := c.CreateMonitors([]rules.Target{bad, target("a"), target("b"), target("c")})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestCreateMonitors_ReplacesStopped(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(nil, testFactory(nil), Options{MaxMonitors: 1})
	require.Equal(t, 1, c.CreateMonitors([]rules.Target{target("a")}))
	old, _ := c.Get("a")
	require.NoError(t, old.Stop())

	assert.Equal(t, 1, c.CreateMonitors([]rules.Target{target("a")}))
	fresh, _ := c.Get("a")
	assert.NotSame(t, old, fresh)
	assert.Equal(t, monitor.StateIdle, fresh.State())
}

func TestLifecycleCounts(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(nil, testFactory(nil), Options{})
	require.Equal(t, 3, c.CreateMonitors([]rules.Target{target("a"), target("b"), target("c")}))

	assert.Equal(t, 0, c.PauseAll(), "nothing is running yet")
	assert.Equal(t, 3, c.StartAll(context.Background()))
	assert.Equal(t, 0, c.StartAll(context.Background()), "already running")

	assert.Equal(t, 3, c.PauseAll())
	assert.Equal(t, 0, c.PauseAll())
	for _, st := range c.Status() {
		require.NotNil(t, st.Paused)
		assert.True(t, *st.Paused)
	}
	assert.Equal(t, 3, c.ResumeAll())
	assert.Equal(t, 0, c.ResumeAll())

	assert.Equal(t, 3, c.StopAll())
	for name, st := range c.Status() {
		assert.False(t, st.Alive, name)
		assert.Nil(t, st.Paused, name)
		assert.Equal(t, "stopped", st.State, name)
	}
}

func TestStatus_Snapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(nil, testFactory(nil), Options{})
	c.CreateMonitors([]rules.Target{target("a")})
	require.Equal(t, 1, c.StartAll(context.Background()))
	defer c.StopAll()

	st := c.Status()
	require.Contains(t, st, "a")
	assert.True(t, st["a"].Alive)
	assert.Nil(t, st["a"].Handle, "window never resolved")
	assert.Equal(t, "a window", st["a"].Title)
}

func TestReloadAndRemove(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(nil, testFactory(nil), Options{})
	c.CreateMonitors([]rules.Target{target("a")})

	next := target("a")
	next.Interval = time.Second
	require.NoError(t, c.Reload(next))
	m, _ := c.Get("a")
	assert.Equal(t, time.Second, m.Target().Interval)

	assert.ErrorIs(t, c.Reload(target("zzz")), ErrUnknownTarget)

	require.NoError(t, c.Remove("a"))
	assert.Zero(t, c.Len())
	assert.ErrorIs(t, c.Remove("a"), ErrUnknownTarget)
}

func TestMetrics_RecordsHooks(t *testing.T) {
	m := NewMetrics()
	hooks := monitor.MultiHooks{m, monitor.NopHooks{}}

	hooks.StateChanged("a", monitor.StateIdle, monitor.StateActive)
	hooks.CycleCompleted("a", 10*time.Millisecond)
	hooks.CaptureFailed("a", errors.New("x"))
	hooks.Matched("a", rules.Rule{Pattern: "ok"}, recognition.Match{Found: true, Confidence: 0.97})
	hooks.Dispatched("a", rules.Rule{Pattern: "ok"}, dispatch.Result{Executed: 2, Failed: 1, Aborted: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captureFailures.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.matches.WithLabelValues("a", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("a", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("a", "aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.states.WithLabelValues("a", "active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.states.WithLabelValues("a", "idle")))
}

func TestMux_StatusAndMetrics(t *testing.T) {
	metrics := NewMetrics()
	c := New(nil, testFactory(metrics), Options{})
	c.CreateMonitors([]rules.Target{target("a")})
	srv := httptest.NewServer(NewMux(c, metrics))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var st map[string]monitor.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", st["a"].State)

	resp, err = http.Post(srv.URL+"/pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics.CycleCompleted("a", time.Millisecond)
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var body strings.Builder
	_, _ = io.Copy(&body, resp.Body)
	resp.Body.Close()
	assert.Contains(t, body.String(), `pixelwatch_cycles_total{target="a"} 1`)
}

// memPrograms holds program files in memory, keyed by file name.
type memPrograms struct {
	dir   string
	mu    sync.Mutex
	files map[string]rules.Target
}

func (m *memPrograms) Dir() string { return m.dir }

func (m *memPrograms) put(file string, t rules.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file] = t
}

func (m *memPrograms) drop(file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, file)
}

func (m *memPrograms) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for f := range m.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memPrograms) Load(file string) (rules.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.files[file]
	if !ok {
		return rules.Target{}, &os.PathError{Op: "open", Path: file + ".yaml", Err: os.ErrNotExist}
	}
	return t, nil
}

func TestApply_CreateReloadRemove(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := New(nil, testFactory(nil), Options{})
	progs := &memPrograms{files: map[string]rules.Target{"a": target("a")}}

	require.NoError(t, c.Apply(context.Background(), progs, "a"))
	m, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, m.Alive(), "new programs start immediately")

	changed := target("a")
	changed.Interval = 50 * time.Millisecond
	progs.put("a", changed)
	require.NoError(t, c.Apply(context.Background(), progs, "a"))
	same, _ := c.Get("a")
	assert.Same(t, m, same)
	assert.Equal(t, 50*time.Millisecond, same.Target().Interval)

	progs.drop("a")
	require.NoError(t, c.Apply(context.Background(), progs, "a"))
	assert.Zero(t, c.Len())
	assert.False(t, m.Alive())

	require.NoError(t, c.Apply(context.Background(), progs, "never-existed"))
}

func TestWatchPrograms_AppliesFileChanges(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	progs := &memPrograms{dir: dir, files: map[string]rules.Target{}}
	c := New(nil, testFactory(nil), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.StopAll()
		time.Sleep(20 * time.Millisecond)
	}()

	require.NoError(t, c.WatchPrograms(ctx, progs, 10*time.Millisecond))
	progs.put("b", target("b"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: b\n"), 0o644))

	assert.Eventually(t, func() bool {
		m, ok := c.Get("b")
		return ok && m.Alive()
	}, 2*time.Second, 10*time.Millisecond)
}

func writeProgram(t *testing.T, dir, file, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data := "name: " + name + "\nwindow_title: " + name + "\nmonitoring_interval: 0.005\n" +
		"rules:\n  - template: ok\n    actions: [{type: wait, params: {seconds: 0}}]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, file+".yaml"), []byte(data), 0o644))
}

func TestApply_TargetNamedDifferentlyFromFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	progs := config.NewPrograms(nil, t.TempDir(), time.Second)
	c := New(nil, testFactory(nil), Options{})
	ctx := context.Background()

	writeProgram(t, progs.Dir(), "game", "Game Client")
	require.NoError(t, c.Apply(ctx, progs, "game"))
	client, ok := c.Get("Game Client")
	require.True(t, ok)
	assert.True(t, client.Alive())

	writeProgram(t, progs.Dir(), "game", "Game Server")
	require.NoError(t, c.Apply(ctx, progs, "game"))
	assert.Equal(t, []string{"Game Server"}, c.Names(), "rename replaces the old monitor")
	assert.False(t, client.Alive())
	server, _ := c.Get("Game Server")
	assert.True(t, server.Alive())

	require.NoError(t, os.Remove(filepath.Join(progs.Dir(), "game.yaml")))
	require.NoError(t, c.Apply(ctx, progs, "game"))
	assert.Zero(t, c.Len())
	assert.False(t, server.Alive())
}

func TestLoadPrograms_RemovalFollowsFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	progs := &memPrograms{files: map[string]rules.Target{
		"game":  target("Game Client"),
		"notes": target("Notepad"),
	}}
	c := New(nil, testFactory(nil), Options{})
	defer c.StopAll()

	assert.Equal(t, 2, c.LoadPrograms(progs))
	m, ok := c.Get("Game Client")
	require.True(t, ok)
	assert.Equal(t, monitor.StateIdle, m.State(), "loaded monitors wait for StartAll")

	progs.drop("game")
	require.NoError(t, c.Apply(context.Background(), progs, "game"))
	assert.Equal(t, []string{"Notepad"}, c.Names())
}

func TestApply_TargetMovedToAnotherFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	progs := &memPrograms{files: map[string]rules.Target{"old": target("Game Client")}}
	c := New(nil, testFactory(nil), Options{})
	defer c.StopAll()
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, progs, "old"))
	m, _ := c.Get("Game Client")

	progs.put("new", target("Game Client"))
	progs.drop("old")
	require.NoError(t, c.Apply(ctx, progs, "new"))
	require.NoError(t, c.Apply(ctx, progs, "old"))

	same, ok := c.Get("Game Client")
	require.True(t, ok, "deleting the previous file leaves the moved target alone")
	assert.Same(t, m, same)
	assert.True(t, same.Alive())
}
