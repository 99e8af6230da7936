package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pixelgrid/internal/coords"
	"github.com/roach88/pixelgrid/internal/engine"
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/relay"
	"github.com/roach88/pixelgrid/internal/testutil"
)

func seedRecord(x, y int, color string) gateway.Record {
	return gateway.Record{
		ID:        coords.RecordID(x, y),
		X:         x,
		Y:         y,
		Color:     color,
		UpdatedAt: testutil.Epoch,
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the
// default logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startRelay serves gw over HTTP and returns the relay url.
func startRelay(t *testing.T, gw gateway.Gateway) string {
	t.Helper()

	srv := relay.NewServer(gw)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	return ts.URL
}

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with args and the given stdin.
func execute(t *testing.T, stdin string, args ...string) cmdResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	var stderr syncBuffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestPaint_WritesThroughRelay(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	res := execute(t, "", "paint", "1", "2", "--color", "#ff4500", "--url", url, "--size", "4")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "Painted 1_2 #FF4500\n", res.stdout)

	rows := mem.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "1_2", rows[0].ID)
	assert.Equal(t, 1, rows[0].X)
	assert.Equal(t, 2, rows[0].Y)
	assert.Equal(t, "#FF4500", rows[0].Color)
}

func TestPaint_ShortcutColor(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	res := execute(t, "", "paint", "0", "0", "-c", "6", "--url", url, "--size", "4")
	require.NoError(t, res.err, res.stderr)

	rows := mem.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "#2450A4", rows[0].Color)
}

func TestPaint_JSONOutput(t *testing.T) {
	url := startRelay(t, gateway.NewMemory())

	res := execute(t, "", "paint", "3", "0", "--url", url, "--size", "4", "--format", "json")
	require.NoError(t, res.err, res.stderr)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ID    string `json:"id"`
			X     int    `json:"x"`
			Y     int    `json:"y"`
			Color string `json:"color"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "3_0", resp.Data.ID)
	assert.Equal(t, 3, resp.Data.X)
	assert.Equal(t, 0, resp.Data.Y)
	assert.Equal(t, "#000000", resp.Data.Color)
}

func TestPaint_RejectsBadInput(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	tests := []struct {
		name string
		args []string
	}{
		{"out of range", []string{"4", "0"}},
		{"negative", []string{"0", "-1"}},
		{"not a number", []string{"a", "1"}},
		{"bad color", []string{"1", "1", "--color", "red"}},
		{"unknown shortcut", []string{"1", "1", "--color", "x"}},
		{"missing coordinate", []string{"1"}},
		{"unknown flag", []string{"1", "1", "--colour", "#FF4500"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"paint"}, tt.args...)
			args = append(args, "--url", url, "--size", "4")

			res := execute(t, "", args...)
			require.Error(t, res.err)
			assert.Equal(t, ExitCommandError, GetExitCode(res.err))
			assert.Contains(t, res.stdout, CodeInput)
		})
	}
	assert.Zero(t, mem.Len())
}

func TestPaint_NegativeCoordinateAfterSeparator(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	res := execute(t, "", "paint", "--url", url, "--size", "4", "--", "0", "-1")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, CodeInput)
	assert.Contains(t, res.stdout, "(0, -1) is outside the 4x4 grid")
	assert.Zero(t, mem.Len())
}

func TestDump_RejectsArguments(t *testing.T) {
	res := execute(t, "", "dump", "extra")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, CodeInput)
}

func TestPaint_UnreachableRelay(t *testing.T) {
	res := execute(t, "", "paint", "0", "0", "--url", "http://127.0.0.1:1", "--size", "4")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stdout, CodeConnect)
	assert.True(t, gateway.IsFetchError(res.err))
}

func TestPaint_WriteRejected(t *testing.T) {
	faulty := testutil.NewFaultyGateway(gateway.NewMemory())
	faulty.FailUpsert.Store(true)
	url := startRelay(t, faulty)

	res := execute(t, "", "paint", "0", "0", "--url", url, "--size", "4")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stdout, CodeWrite)
	assert.True(t, gateway.IsWriteError(res.err))
}

func TestClear_WithYes(t *testing.T) {
	mem := gateway.NewMemory(seedRecord(0, 0, "#000000"), seedRecord(2, 3, "#FF4500"))
	url := startRelay(t, mem)

	res := execute(t, "", "clear", "--yes", "--url", url, "--size", "4")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "Canvas cleared\n", res.stdout)
	assert.Zero(t, mem.Len())
}

func TestClear_Prompt(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		cleared  bool
		wantText string
	}{
		{"yes", "y\n", true, "Canvas cleared"},
		{"long yes", "YES\n", true, "Canvas cleared"},
		{"no", "n\n", false, "Clear cancelled"},
		{"empty", "\n", false, "Clear cancelled"},
		{"eof", "", false, "Clear cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := gateway.NewMemory(seedRecord(1, 1, "#00A368"))
			url := startRelay(t, mem)

			res := execute(t, tt.answer, "clear", "--url", url, "--size", "4")
			require.NoError(t, res.err, res.stderr)
			assert.Contains(t, res.stderr, engine.ClearPrompt+" [y/N]")
			assert.Contains(t, res.stdout, tt.wantText)
			if tt.cleared {
				assert.Zero(t, mem.Len())
			} else {
				assert.Equal(t, 1, mem.Len())
			}
		})
	}
}

func TestClear_DeleteRejected(t *testing.T) {
	mem := gateway.NewMemory(seedRecord(1, 1, "#00A368"))
	faulty := testutil.NewFaultyGateway(mem)
	faulty.FailDelete.Store(true)
	url := startRelay(t, faulty)

	res := execute(t, "", "clear", "--yes", "--url", url, "--size", "4")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stdout, CodeWrite)
	assert.Equal(t, 1, mem.Len())
}

func TestDump_Text(t *testing.T) {
	mem := gateway.NewMemory(seedRecord(0, 0, "#000000"), seedRecord(1, 1, "#FF4500"), seedRecord(3, 3, "#123456"))
	url := startRelay(t, mem)

	res := execute(t, "", "dump", "--url", url, "--size", "4")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "C...\n.0..\n....\n...?\n", res.stdout)
}

func TestDump_JSON(t *testing.T) {
	mem := gateway.NewMemory(seedRecord(2, 1, "#811E9F"))
	url := startRelay(t, mem)

	res := execute(t, "", "dump", "--url", url, "--size", "4", "--format", "json")
	require.NoError(t, res.err, res.stderr)

	var resp struct {
		Status string   `json:"status"`
		Data   DumpData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Size)
	assert.Equal(t, []string{"....", "..8.", "....", "...."}, resp.Data.Rows)
	assert.Equal(t, map[string]string{"2_1": "#811E9F"}, resp.Data.Painted)
}

func TestDump_SkipsRecordsOutsideGrid(t *testing.T) {
	mem := gateway.NewMemory(seedRecord(0, 0, "#000000"), gateway.Record{ID: "9_9", X: 9, Y: 9, Color: "#000000"})
	url := startRelay(t, mem)

	res := execute(t, "", "dump", "--url", url, "--size", "2")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "C.\n..\n", res.stdout)
}

func TestWatch_StreamsRemoteChanges(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	type outcome struct{ res cmdResult }
	done := make(chan outcome, 1)
	go func() {
		done <- outcome{execute(t, "", "watch", "--url", url, "--size", "4", "--count", "3")}
	}()

	require.Eventually(t, func() bool {
		return mem.Feed().Subscribers() > 0
	}, 5*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, mem.Upsert(ctx, seedRecord(2, 3, "#FF4500")))
	require.NoError(t, mem.DeleteAll(ctx, gateway.PlaceholderID))

	select {
	case out := <-done:
		require.NoError(t, out.res.err, out.res.stderr)
		lines := strings.Split(strings.TrimSpace(out.res.stdout), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, out.res.stdout, "loaded")
		assert.Contains(t, out.res.stdout, "remote insert 2_3 #FF4500")
		assert.Contains(t, out.res.stdout, "ignored clear\n")
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not finish")
	}
}

func TestWatch_JSONLines(t *testing.T) {
	mem := gateway.NewMemory()
	url := startRelay(t, mem)

	res := execute(t, "", "watch", "--url", url, "--size", "4", "--count", "1", "--format", "json")
	require.NoError(t, res.err, res.stderr)

	var ev WatchEvent
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &ev))
	assert.Equal(t, string(engine.UpdateLoaded), ev.Kind)
	assert.Empty(t, ev.Cell)
}

func TestPalette(t *testing.T) {
	res := execute(t, "", "palette")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 16)
	assert.Equal(t, "0  #FF4500  key 1", lines[0])
	assert.Equal(t, "9  #B44AC0  key 0", lines[9])
	assert.Equal(t, "C  #000000", lines[12])
	assert.Equal(t, "F  #FFFFFF  key e", lines[15])
}

func TestPalette_JSON(t *testing.T) {
	res := execute(t, "", "palette", "--format", "json")
	require.NoError(t, res.err)

	var resp struct {
		Data []PaletteEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.Len(t, resp.Data, 16)
	assert.Equal(t, PaletteEntry{Glyph: "5", Color: "#2450A4", Shortcut: "6"}, resp.Data[5])
}

func TestServe_MemoryBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var stdout bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"serve", "--backend", "memory", "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, stdout.String(), "Relay serving memory backend on 127.0.0.1:0")
}

func TestServe_UnknownBackend(t *testing.T) {
	res := execute(t, "", "serve", "--backend", "mongo", "--addr", "127.0.0.1:0")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "unknown backend")
}

func TestServe_SQLiteBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := t.TempDir() + "/pixelgrid.db"
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"serve", "--db", db, "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.FileExists(t, db)
}
