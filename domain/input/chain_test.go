package input

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

type fakeInjector struct {
	name      string
	available bool
	err       error
	panicMsg  string
	sleep     time.Duration

	mu     sync.Mutex
	events []string
}

func (f *fakeInjector) Name() string    { return f.name }
func (f *fakeInjector) Available() bool { return f.available }

func (f *fakeInjector) record(ev string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	return f.err
}

func (f *fakeInjector) Move(x, y int) error { return f.record("move") }
func (f *fakeInjector) Click(x, y int, b rules.Button) error {
	return f.record("click:" + b.String())
}
func (f *fakeInjector) KeyEvent(code int, p rules.PressType) error {
	return f.record("key:" + p.String())
}
func (f *fakeInjector) Type(text string, d time.Duration) error { return f.record("type:" + text) }

func (f *fakeInjector) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestChain_ShortCircuitsOnFirstSuccess(t *testing.T) {
	a := &fakeInjector{name: "a", available: true}
	b := &fakeInjector{name: "b", available: true}
	c := NewChain(nil, ChainOptions{}, a, b)

	require.NoError(t, c.Click(1, 2, rules.ButtonRight))
	assert.Equal(t, []string{"click:right"}, a.calls())
	assert.Empty(t, b.calls())
}

func TestChain_SkipsUnavailableAndFallsBack(t *testing.T) {
	drv := &fakeInjector{name: "driver", available: false}
	hw := &fakeInjector{name: "hardware", available: true, err: errors.New("blocked")}
	boom := &fakeInjector{name: "message", available: true, panicMsg: "bad handle"}
	rg := &fakeInjector{name: "robotgo", available: true}
	c := NewChain(nil, ChainOptions{}, drv, hw, boom, rg)

	require.NoError(t, c.KeyEvent(0x41, rules.PressDown))
	assert.Empty(t, drv.calls())
	assert.Equal(t, []string{"key:down"}, hw.calls())
	assert.Equal(t, []string{"key:down"}, rg.calls())
	assert.Equal(t, []string{"hardware", "message", "robotgo"}, c.Strategies())
}

func TestChain_JoinsFailures(t *testing.T) {
	errA, errB := errors.New("a failed"), errors.New("b failed")
	c := NewChain(nil, ChainOptions{},
		&fakeInjector{name: "a", available: true, err: errA},
		&fakeInjector{name: "b", available: true, err: errB},
	)
	err := c.Move(5, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "move")
}

func TestChain_NothingAvailable(t *testing.T) {
	c := NewChain(nil, ChainOptions{}, &fakeInjector{name: "a"})
	assert.False(t, c.Available())
	assert.ErrorIs(t, c.Click(0, 0, rules.ButtonLeft), ErrUnavailable)
	assert.ErrorIs(t, NewChain(nil, ChainOptions{}).Type("x", 0), ErrUnavailable)
}

func TestChain_BudgetStopsFallback(t *testing.T) {
	slow := &fakeInjector{name: "slow", available: true, sleep: 60 * time.Millisecond, err: errors.New("timeout")}
	next := &fakeInjector{name: "next", available: true}
	c := NewChain(nil, ChainOptions{Budget: 20 * time.Millisecond}, slow, next)

	err := c.Click(0, 0, rules.ButtonLeft)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Empty(t, next.calls())

	// typing is not bounded by the click budget
	slow.err = nil
	require.NoError(t, c.Type("hello", 0))
}

func TestChain_SerialisesPrimitives(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	probe := &probeInjector{enter: func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
	}}
	c := NewChain(nil, ChainOptions{}, probe)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Click(i, i, rules.ButtonLeft)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
}

type probeInjector struct{ enter func() }

func (p *probeInjector) Name() string                             { return "probe" }
func (p *probeInjector) Available() bool                          { return true }
func (p *probeInjector) Move(int, int) error                      { p.enter(); return nil }
func (p *probeInjector) Click(int, int, rules.Button) error       { p.enter(); return nil }
func (p *probeInjector) KeyEvent(int, rules.PressType) error      { p.enter(); return nil }
func (p *probeInjector) Type(string, time.Duration) error         { p.enter(); return nil }

func TestChain_RateLimited(t *testing.T) {
	a := &fakeInjector{name: "a", available: true}
	c := NewChain(nil, ChainOptions{EventsPerSecond: 20, Burst: 1}, a)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Move(i, i))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestAssemble_OrdersByName(t *testing.T) {
	byName := map[string]Injector{
		StrategyHardware: &fakeInjector{name: StrategyHardware, available: true},
		StrategyRobotgo:  &fakeInjector{name: StrategyRobotgo, available: true},
	}
	c := Assemble(nil, ChainOptions{}, []string{StrategyRobotgo, "bogus", StrategyHardware}, byName)
	assert.Equal(t, []string{StrategyRobotgo, StrategyHardware}, c.Strategies())

	c = Assemble(nil, ChainOptions{}, nil, byName)
	assert.Equal(t, []string{StrategyHardware, StrategyRobotgo}, c.Strategies())
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, []int{'H', 'I', ' ', '1', '!'}, TextKeyCodes("hi 1!\n\tü"))

	for code, want := range map[int]string{'A': "a", '7': "7", VKF1: "f1", VKF1 + 11: "f12", VKReturn: "enter", VKSpace: "space"} {
		got, ok := KeyName(code)
		assert.True(t, ok, code)
		assert.Equal(t, want, got)
	}
	_, ok := KeyName(0xFE)
	assert.False(t, ok)
}
