package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), SystemFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultSystem(), s)
	assert.Equal(t, time.Second, s.DefaultInterval())
	assert.Equal(t, 3*time.Second, s.StartupDelayDuration())
	assert.Equal(t, 10, s.MaxMonitors)
	assert.Equal(t, []string{"driver", "hardware", "message", "robotgo"}, s.Input.Strategies)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), SystemFile)
	require.NoError(t, os.WriteFile(path, []byte(`
monitoring_interval_default: 0.25
max_monitors: 3
log:
  level: debug
recognition:
  stride: 2
`), 0o644))
	t.Setenv("PIXELWATCH_MAX_MONITORS", "7")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.DefaultInterval())
	assert.Equal(t, 7, s.MaxMonitors)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, 2, s.Recognition.Stride)
	assert.True(t, s.Recognition.Refine, "untouched keys keep defaults")
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), SystemFile)
	require.NoError(t, os.WriteFile(path, []byte("monitoring_interval_default: 0\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "monitoring_interval_default")

	require.NoError(t, os.WriteFile(path, []byte("log: {level: chatty}\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "log.level")
}

func TestSystem_SaveLoadKeepsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SystemFile)
	s := DefaultSystem()
	s.MaxMonitors = 4
	s.Events.NATSURL = "nats://127.0.0.1:4222"
	require.NoError(t, s.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestPatternDir(t *testing.T) {
	s := DefaultSystem()
	assert.Equal(t, filepath.Join("cfg", "templates"), s.PatternDir("cfg"))
	abs, _ := filepath.Abs("pats")
	s.Patterns.Dir = abs
	assert.Equal(t, abs, s.PatternDir("cfg"))
}

const sampleProgram = `
name: notepad
window_title: Untitled - Notepad
window_class: Notepad
monitoring_interval: 0.5
rules:
  - template: save_dialog
    threshold: 0.9
    match_method: histogram
    click_on_match: true
    actions:
      - type: click
        params: {x: 0.5, y: 0.5, relative: true, button: right}
        delay: 0.2
        required: true
      - type: key
        params: {key: 13, press_type: down}
      - type: text
        params: {text: hello}
      - type: wait
        params: {seconds: 2}
  - template: broken
    actions:
      - type: teleport
  - template: no_actions
`

func TestDecode_FullProgram(t *testing.T) {
	tgt, skipped, err := Decode([]byte(sampleProgram), "fallback", time.Second)
	require.NoError(t, err)
	assert.Len(t, skipped, 2, "unknown action type and empty action list are skipped")

	assert.Equal(t, "notepad", tgt.Name)
	assert.Equal(t, "Notepad", tgt.WindowClass)
	assert.Equal(t, 500*time.Millisecond, tgt.Interval)
	require.Len(t, tgt.Rules, 1)

	r := tgt.Rules[0]
	assert.Equal(t, "save_dialog", r.Pattern)
	assert.Equal(t, rules.StrategyHistogram, r.Strategy)
	assert.Equal(t, 0.9, r.Threshold)
	assert.True(t, r.ClickOnMatch)
	assert.Equal(t, []rules.Action{
		{Params: rules.Click{X: 0.5, Y: 0.5, Button: rules.ButtonRight, Relative: true}, Delay: 200 * time.Millisecond, Required: true},
		{Params: rules.Key{Code: 13, Press: rules.PressDown}},
		{Params: rules.Text{Text: "hello", Delay: 10 * time.Millisecond}},
		{Params: rules.Wait{Duration: 2 * time.Second}},
	}, r.Actions)
}

func TestDecode_WrappedTargetAndDefaults(t *testing.T) {
	data := []byte(`
target:
  window_title: Calculator
  rules:
    - template: equals
      actions:
        - type: wait
`)
	tgt, skipped, err := Decode(data, "calc", 2*time.Second)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, "calc", tgt.Name)
	assert.Equal(t, 2*time.Second, tgt.Interval)
	require.Len(t, tgt.Rules, 1)
	assert.Equal(t, 0.8, tgt.Rules[0].Threshold)
	assert.Equal(t, rules.Wait{Duration: time.Second}, tgt.Rules[0].Actions[0].Params)
}

func TestDecode_InvalidRuleSet(t *testing.T) {
	for name, data := range map[string]string{
		"not yaml":      "rules: [",
		"no title":      "name: x\n",
		"zero interval": "name: x\nwindow_title: y\nmonitoring_interval: 0\n",
	} {
		_, _, err := Decode([]byte(data), "x", time.Second)
		assert.ErrorIs(t, err, ErrInvalidRuleSet, name)
	}

	_, skipped, err := Decode([]byte(`
window_title: y
rules:
  - template: a
    threshold: 1.5
    actions: [{type: wait}]
  - template: b
    actions: [{type: click, params: {x: 2, y: 0, relative: true}}]
  - template: c
    actions: [{type: key, params: {key: 13, press_type: sideways}}]
`), "x", time.Second)
	require.NoError(t, err)
	require.Len(t, skipped, 3)
	assert.ErrorIs(t, skipped[1], rules.ErrInvalidAction)
	assert.ErrorIs(t, skipped[2], rules.ErrInvalidAction)
}

func TestPrograms_SaveListLoad(t *testing.T) {
	dir := t.TempDir()
	p := NewPrograms(nil, dir, time.Second)

	names, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	want := DefaultProgram("notepad", "")
	want.WindowClass = "Notepad"
	want.Rules[0].Strategy = rules.StrategyHistogram
	want.Rules[0].Actions = append(want.Rules[0].Actions,
		rules.Action{Params: rules.Key{Code: 0x0D, Press: rules.PressUp}, Required: true},
		rules.Action{Params: rules.Text{Text: "hi", Delay: 20 * time.Millisecond}},
	)
	require.NoError(t, p.Save(want))
	require.NoError(t, p.Save(DefaultProgram("calc", "Calculator")))
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "junk.yaml"), []byte("name: ["), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "readme.txt"), []byte("ignored"), 0o644))

	names, err = p.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"calc", "junk", "notepad"}, names)

	got, err := p.Load("notepad")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "notepad", got.WindowTitle)

	_, err = p.Load("junk")
	assert.ErrorIs(t, err, ErrInvalidRuleSet)
	_, err = p.Load("absent")
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.ErrorIs(t, p.Save(rules.Target{Name: "bad"}), ErrInvalidRuleSet)
}
