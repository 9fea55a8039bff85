package state

import (
	"testing"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializeDeserializeRoundTrip(t *testing.T) {
	m := New("demo.iim", 10, 3, 50)
	m.Start()
	m.SetCurrentLine(4)
	m.IncrementLoop()
	m.Vars().Set("greeting", "hello")
	m.AddExtract("a")
	m.AddExtract("b")
	m.SetError(codes.ElementNotFound, "not found")
	m.ClearError()

	data, err := m.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, m.CurrentLine(), restored.CurrentLine())
	assert.Equal(t, m.TotalLines(), restored.TotalLines())
	assert.Equal(t, m.LoopCounter(), restored.LoopCounter())
	assert.Equal(t, m.GetExtractString(), restored.GetExtractString())
	assert.Equal(t, m.Status(), restored.Status())
	v, ok := restored.Vars().Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestManager_IncrementLoopKeepsLoopVarInSync(t *testing.T) {
	m := New("demo.iim", 10, 5, 10)
	m.IncrementLoop()
	m.IncrementLoop()
	loopVar, ok := m.Vars().Get("!LOOP")
	require.True(t, ok)
	assert.Equal(t, "2", loopVar)
	assert.Equal(t, 2, m.LoopCounter())
}

func TestManager_SnapshotsAreBounded(t *testing.T) {
	m := New("demo.iim", 10, 1, 3)
	for i := 0; i < 10; i++ {
		m.CreateSnapshot("")
	}
	assert.LessOrEqual(t, len(m.Snapshots()), 3)
}

func TestManager_StatusMachine(t *testing.T) {
	m := New("demo.iim", 10, 1, 10)
	assert.Equal(t, StatusIdle, m.Status())
	m.Start()
	assert.Equal(t, StatusRunning, m.Status())
	m.Pause()
	assert.Equal(t, StatusPaused, m.Status())
	m.Resume()
	assert.Equal(t, StatusRunning, m.Status())
	m.SetError(codes.ScriptError, "boom")
	assert.Equal(t, StatusError, m.Status())
	assert.True(t, m.HasError())
	m.ClearError()
	assert.Equal(t, StatusPaused, m.Status())
	m.Abort()
	assert.Equal(t, StatusAborted, m.Status())
	assert.False(t, m.CanContinue())
}

func TestStopwatches_ToggleAndRecord(t *testing.T) {
	sw := NewStopwatches()
	ok := sw.Start("timer1")
	require.True(t, ok)
	assert.True(t, sw.IsRunning("timer1"))

	ok = sw.Start("timer1")
	assert.False(t, ok, "starting a running timer should fail")

	elapsed, ok := sw.Stop("timer1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 0.0)

	_, ok = sw.Stop("timer1")
	assert.False(t, ok, "stopping a stopped timer should fail")

	records := sw.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "TIMER1", records[0].ID)
}

func TestStopwatches_CSVFormat(t *testing.T) {
	sw := NewStopwatches()
	sw.Start("a")
	sw.Stop("a")
	csv := sw.CSV("demo.iim", "ok", 0)
	assert.Contains(t, csv, "Macro: demo.iim")
	assert.Contains(t, csv, ",A,")
}
