package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/internal/history"
	"github.com/me/framesched/internal/server"
	"github.com/me/framesched/internal/store"
	"github.com/me/framesched/pkg/model"
)

const testDetections = `{
  "0001.png": [[644, 655, 729, 720, 64.44, 2], [571, 667, 759, 813, 29.45, 1], [10, 10, 40, 40, 4.1, 1]],
  "0002.png": [[0, 0, 100, 100, 10, 0], [50, 50, 150, 150, 12, 0]],
  "0010.png": [[1000, 100, 1500, 700, 85.5, 3]]
}`

// testFiles writes the detection file into a temp dir and returns the dir,
// the detection path and a database path inside it.
func testFiles(t *testing.T) (dir, detPath, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	detPath = filepath.Join(dir, "detections.json")
	if err := os.WriteFile(detPath, []byte(testDetections), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, detPath, filepath.Join(dir, "runs.db")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--quiet"}, args...))

	err := root.Execute()
	return buf.String(), err
}

func storedRuns(t *testing.T, dbPath string) []*model.Run {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runs, _, err := st.ListRuns(context.Background(), model.ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	return runs
}

// startTestServer serves the database at dbPath and returns the URL.
func startTestServer(t *testing.T, dbPath string) string {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(dbPath, srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := server.New(config.DefaultServerConfig(), st, srvLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRunCommand(t *testing.T) {
	dir, detPath, dbPath := testFiles(t)
	histPath := filepath.Join(dir, "history.json")
	boxesPath := filepath.Join(dir, "boxes.json")
	yamlPath := filepath.Join(dir, "history.yaml")

	out, err := runCLI(t, "--db", dbPath,
		"run", "-d", detPath, "--frame-period", "30",
		"--out", histPath, "--boxes", boxesPath, "--yaml", yamlPath,
		"--print", "--name", "smoke")
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, out)
	}

	for _, want := range []string{"status:     COMPLETED", "deadline miss rate:", "COUNT", "every 30 ticks"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	f, err := os.Open(histPath)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer f.Close()
	records, err := history.ReadRecordsJSON(f)
	if err != nil {
		t.Fatalf("ReadRecordsJSON: %v", err)
	}
	// 0001: two merged + one small; 0002: one merged; 0010: one large.
	if len(records) != 4 {
		t.Errorf("history records = %d, want 4", len(records))
	}
	for _, p := range []string{boxesPath, yamlPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("output %s missing or empty: %v", p, err)
		}
	}

	runs := storedRuns(t, dbPath)
	if len(runs) != 1 {
		t.Fatalf("stored runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Name != "smoke" || run.Status != model.RunStatusCompleted || run.FramePeriod != 30 {
		t.Errorf("stored run = %+v", run)
	}
	if run.Counters.CompletedTasks != 4 || run.Frames != 3 {
		t.Errorf("counters = %+v, frames = %d", run.Counters, run.Frames)
	}
	if run.Config["frame_period"] != float64(30) {
		t.Errorf("stored config frame_period = %v", run.Config["frame_period"])
	}
}

func TestRunCommand_RequiresDetections(t *testing.T) {
	_, err := runCLI(t, "run", "--no-save")
	if err == nil {
		t.Fatal("expected error without --detections")
	}
}

func TestRunCommand_InvalidOverride(t *testing.T) {
	_, detPath, _ := testFiles(t)
	_, err := runCLI(t, "run", "-d", detPath, "--no-save", "--merge", "sideways")
	if err == nil || !strings.Contains(err.Error(), "cluster.merge") {
		t.Fatalf("err = %v, want cluster.merge config error", err)
	}
}

func TestRunCommand_MissingFrameFails(t *testing.T) {
	dir, detPath, dbPath := testFiles(t)
	images := filepath.Join(dir, "images")
	if err := os.Mkdir(images, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"0001.png", "0003.png"} {
		if err := os.WriteFile(filepath.Join(images, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := runCLI(t, "--db", dbPath, "run", "-d", detPath, "--images", images)
	if err == nil {
		t.Fatalf("expected missing-frame error, output: %s", out)
	}
	if !strings.Contains(err.Error(), "0003.png") {
		t.Errorf("error = %v, want it to name 0003.png", err)
	}

	runs := storedRuns(t, dbPath)
	if len(runs) != 1 || runs[0].Status != model.RunStatusFailed || runs[0].Error == "" {
		t.Errorf("stored runs = %+v, want one FAILED run with error", runs)
	}
}

func TestRunCommand_Truncated(t *testing.T) {
	_, detPath, _ := testFiles(t)
	out, err := runCLI(t, "run", "-d", detPath, "--no-save", "--max-sim-time", "150")
	if err != nil {
		t.Fatalf("truncated run should not fail: %v", err)
	}
	if !strings.Contains(out, "TRUNCATED") {
		t.Errorf("output missing TRUNCATED:\n%s", out)
	}
}

func TestRunsCommand(t *testing.T) {
	_, detPath, dbPath := testFiles(t)

	out, err := runCLI(t, "--db", dbPath, "runs")
	if err != nil {
		t.Fatalf("runs error: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("empty listing = %q", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "run", "-d", detPath, "--name", "first"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	out, err = runCLI(t, "--db", dbPath, "runs")
	if err != nil {
		t.Fatalf("runs error: %v", err)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "COMPLETED") {
		t.Errorf("listing missing run:\n%s", out)
	}

	id := storedRuns(t, dbPath)[0].ID
	out, err = runCLI(t, "--db", dbPath, "runs", "delete", id)
	if err != nil {
		t.Fatalf("runs delete error: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Errorf("delete output = %q", out)
	}
	if n := len(storedRuns(t, dbPath)); n != 0 {
		t.Errorf("runs after delete = %d, want 0", n)
	}
}

func TestRunsCommand_StatusFilter(t *testing.T) {
	_, detPath, dbPath := testFiles(t)
	if _, err := runCLI(t, "--db", dbPath, "run", "-d", detPath, "--name", "whole"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if _, err := runCLI(t, "--db", dbPath, "run", "-d", detPath, "--name", "cut", "--max-sim-time", "150"); err != nil {
		t.Fatalf("truncated run error: %v", err)
	}

	out, err := runCLI(t, "--db", dbPath, "runs", "--status", "truncated")
	if err != nil {
		t.Fatalf("runs --status error: %v", err)
	}
	if !strings.Contains(out, "cut") || strings.Contains(out, "whole") {
		t.Errorf("filtered listing:\n%s", out)
	}

	url := startTestServer(t, dbPath)
	out, err = runCLI(t, "--server", url, "runs", "--status", "COMPLETED")
	if err != nil {
		t.Fatalf("remote runs --status error: %v", err)
	}
	if !strings.Contains(out, "whole") || strings.Contains(out, "cut") {
		t.Errorf("remote filtered listing:\n%s", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "runs", "--status", "sideways"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestReportCommand_StoredRun(t *testing.T) {
	_, detPath, dbPath := testFiles(t)
	if _, err := runCLI(t, "--db", dbPath, "run", "-d", detPath); err != nil {
		t.Fatalf("run error: %v", err)
	}
	id := storedRuns(t, dbPath)[0].ID

	out, err := runCLI(t, "--db", dbPath, "report", id, "--ground-truth", detPath)
	if err != nil {
		t.Fatalf("report error: %v\noutput: %s", err, out)
	}
	for _, want := range []string{id, "AVG RESPONSE", "4 tasks", "coverage:", "accuracy:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportCommand_HistoryFile(t *testing.T) {
	dir, detPath, _ := testFiles(t)
	histPath := filepath.Join(dir, "history.json")
	boxesPath := filepath.Join(dir, "boxes.json")
	if _, err := runCLI(t, "run", "-d", detPath, "--no-save", "--out", histPath, "--boxes", boxesPath); err != nil {
		t.Fatalf("run error: %v", err)
	}

	out, err := runCLI(t, "report", "--history", histPath, "--boxes", boxesPath, "--ground-truth", detPath, "--print")
	if err != nil {
		t.Fatalf("report error: %v\noutput: %s", err, out)
	}
	for _, want := range []string{"COUNT", "DEPTH", "90+", "coverage:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportCommand_CoverageNeedsBoxes(t *testing.T) {
	dir, detPath, _ := testFiles(t)
	histPath := filepath.Join(dir, "history.json")
	if _, err := runCLI(t, "run", "-d", detPath, "--no-save", "--out", histPath); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if _, err := runCLI(t, "report", "--history", histPath, "--ground-truth", detPath); err == nil {
		t.Error("expected error for coverage without boxes")
	}
}

func TestReportCommand_NeedsInput(t *testing.T) {
	_, err := runCLI(t, "report")
	if err == nil {
		t.Fatal("expected error without run ID or --history")
	}
}

func TestServerBackend(t *testing.T) {
	_, detPath, dbPath := testFiles(t)
	if _, err := runCLI(t, "--db", dbPath, "run", "-d", detPath, "--name", "remote"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	id := storedRuns(t, dbPath)[0].ID
	url := startTestServer(t, dbPath)

	out, err := runCLI(t, "--server", url, "runs")
	if err != nil {
		t.Fatalf("runs via server: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "remote") {
		t.Errorf("remote listing missing run:\n%s", out)
	}

	out, err = runCLI(t, "--server", url, "report", id)
	if err != nil {
		t.Fatalf("report via server: %v", err)
	}
	if !strings.Contains(out, "4 tasks") {
		t.Errorf("remote report:\n%s", out)
	}

	if _, err := runCLI(t, "--server", url, "report", "run_missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "framesched ") {
		t.Errorf("version output = %q", out)
	}
}
