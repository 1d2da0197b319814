package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/mocklens/internal/config"
	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/table"
	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/internal/vision"
	"github.com/hyperengineering/mocklens/pkg/client"
	"github.com/hyperengineering/mocklens/pkg/item"
)

// executeCmd runs the root command with captured output.
func executeCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Cobra parses into package-level variables, so stale values from
	// previous tests would leak if not reset.
	dbPathOverride = ""
	projectJSONOutput = false
	projectDescription = ""
	screenImageRef = ""
	exportProjectID, exportScreenID, exportOut = "", "", ""
	analyzeFormat = "table"
	analyzeParallel = 2
	pushServer = "http://localhost:8080"
	pushAPIKey, pushProjectID, pushScreenID, pushFile, pushModel = "", "", "", "", ""
	pushTimeout = 30 * time.Second

	t.Setenv("MOCKLENS_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mocklens.db")
}

// --- Project Tests ---

func TestProjectCreateAndList(t *testing.T) {
	db := tempDB(t)

	stdout, _, err := executeCmd(t, "project", "create", "Checkout", "--description", "Payment flow", "--db", db)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if !strings.Contains(stdout, `Created project "Checkout"`) {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = executeCmd(t, "project", "list", "--db", db)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(stdout, "Checkout") || !strings.Contains(stdout, "Payment flow") {
		t.Errorf("list stdout = %q", stdout)
	}

	stdout, _, err = executeCmd(t, "project", "list", "--json", "--db", db)
	if err != nil {
		t.Fatalf("list --json error: %v", err)
	}
	var list types.ProjectList
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(list.Projects) != 1 || list.Projects[0].Name != "Checkout" {
		t.Errorf("projects = %+v", list.Projects)
	}
}

func TestProjectList_Empty(t *testing.T) {
	stdout, _, err := executeCmd(t, "project", "list", "--db", tempDB(t))
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(stdout, "No projects found.") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestProjectCreate_Duplicate(t *testing.T) {
	db := tempDB(t)
	if _, _, err := executeCmd(t, "project", "create", "Checkout", "--db", db); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := executeCmd(t, "project", "create", "Checkout", "--db", db)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v, want already exists", err)
	}
}

func TestProjectCreate_BlankName(t *testing.T) {
	_, _, err := executeCmd(t, "project", "create", "   ", "--db", tempDB(t))
	if err == nil || !strings.Contains(err.Error(), "name") {
		t.Errorf("error = %v, want name validation failure", err)
	}
}

func TestProjectAddScreenAndDelete(t *testing.T) {
	db := tempDB(t)

	stdout, _, err := executeCmd(t, "project", "create", "Checkout", "--json", "--db", db)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	var p types.Project
	if err := json.Unmarshal([]byte(stdout), &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	stdout, _, err = executeCmd(t, "project", "add-screen", p.ID, "Login", "--json", "--db", db)
	if err != nil {
		t.Fatalf("add-screen error: %v", err)
	}
	var s types.Screen
	if err := json.Unmarshal([]byte(stdout), &s); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if s.Position != 1 || s.ProjectID != p.ID {
		t.Errorf("screen = %+v", s)
	}

	if _, _, err := executeCmd(t, "project", "delete", p.ID, "--db", db); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	stdout, _, _ = executeCmd(t, "project", "list", "--db", db)
	if !strings.Contains(stdout, "No projects found.") {
		t.Errorf("after delete stdout = %q", stdout)
	}
}

func TestProjectAddScreen_InvalidImageRef(t *testing.T) {
	_, _, err := executeCmd(t, "project", "add-screen", "p1", "Login", "--image-ref", "not-a-ulid", "--db", tempDB(t))
	if err == nil || !strings.Contains(err.Error(), "image_ref") {
		t.Errorf("error = %v, want image_ref validation failure", err)
	}
}

func TestProjectDelete_NotFound(t *testing.T) {
	_, _, err := executeCmd(t, "project", "delete", "01HZZZZZZZZZZZZZZZZZZZZZZZ", "--db", tempDB(t))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

// --- Export Tests ---

// seedResult creates a project with one screen and a saved record set.
func seedResult(t *testing.T, path string, records []item.Record) (projectID, screenID string) {
	t.Helper()
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	p, err := s.CreateProject(ctx, types.NewProject{Name: "Checkout"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	sc, err := s.AddScreen(ctx, p.ID, types.NewScreen{Name: "Login"})
	if err != nil {
		t.Fatalf("add screen: %v", err)
	}
	if _, err := s.SaveResult(ctx, p.ID, sc.ID, types.SaveResultRequest{Items: records}); err != nil {
		t.Fatalf("save result: %v", err)
	}
	return p.ID, sc.ID
}

func testRecords() []item.Record {
	a, b := item.New(1), item.New(2)
	a.Content, a.ElementType, a.IORole = "Email", "Input", item.IOInput
	b.Content, b.ElementType = "Sign in", "Button"
	return []item.Record{a, b}
}

func TestExport_Stdout(t *testing.T) {
	db := tempDB(t)
	pid, sid := seedResult(t, db, testRecords())

	stdout, _, err := executeCmd(t, "export", "--db", db, "--project", pid, "--screen", sid)
	if err != nil {
		t.Fatalf("export error: %v", err)
	}
	want, err := table.New(testRecords()).CSV()
	if err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	if stdout != string(want) {
		t.Errorf("export output:\n%s\nwant:\n%s", stdout, want)
	}
}

func TestExport_ToFile(t *testing.T) {
	db := tempDB(t)
	pid, sid := seedResult(t, db, testRecords())
	out := filepath.Join(t.TempDir(), "login.csv")

	stdout, stderr, err := executeCmd(t, "export", "--db", db, "--project", pid, "--screen", sid, "--out", out)
	if err != nil {
		t.Fatalf("export error: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty when --out is set", stdout)
	}
	if !strings.Contains(stderr, "Exported 2 elements") {
		t.Errorf("stderr = %q", stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), `"Email"`) || !strings.HasSuffix(string(data), "\r\n") {
		t.Errorf("file content = %q", data)
	}
}

func TestExport_NoResult(t *testing.T) {
	_, _, err := executeCmd(t, "export", "--db", tempDB(t), "--project", "p1", "--screen", "s1")
	if err == nil || !strings.Contains(err.Error(), "no saved result") {
		t.Errorf("error = %v, want no saved result", err)
	}
}

// --- Analyze Tests ---

// mockAnalyzer implements vision.ImageAnalyzer for testing
type mockAnalyzer struct {
	result *normalize.Result
	err    error

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
}

func (m *mockAnalyzer) Analyze(ctx context.Context, img vision.Image) (*normalize.Result, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockAnalyzer) ModelName() string { return "gpt-4o" }

func useAnalyzer(t *testing.T, a vision.ImageAnalyzer) {
	t.Helper()
	old := newImageAnalyzer
	newImageAnalyzer = func(*config.Config) vision.ImageAnalyzer { return a }
	t.Cleanup(func() { newImageAnalyzer = old })
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

func TestAnalyze_JSONSingleImage(t *testing.T) {
	useAnalyzer(t, &mockAnalyzer{result: &normalize.Result{Records: testRecords(), Truncated: true}})
	path := writePNG(t, t.TempDir(), "login.png")

	stdout, _, err := executeCmd(t, "analyze", "--format", "json", path)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	var got analysis
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(got.Items) != 2 || !got.Truncated || got.Model != "gpt-4o" {
		t.Errorf("analysis = %+v", got)
	}
	if len(got.Warnings) != 1 {
		t.Errorf("warnings = %v, want truncation warning", got.Warnings)
	}

	// The single-image JSON output is accepted by push.
	records, err := decodeRecordFile([]byte(stdout))
	if err != nil || len(records) != 2 {
		t.Errorf("decodeRecordFile() = %d records, %v", len(records), err)
	}
}

func TestAnalyze_TableReportsFailures(t *testing.T) {
	useAnalyzer(t, &mockAnalyzer{result: &normalize.Result{Records: testRecords()}})
	dir := t.TempDir()
	good := writePNG(t, dir, "login.png")
	bad := filepath.Join(dir, "notes.txt")
	os.WriteFile(bad, []byte("just text"), 0644)

	stdout, _, err := executeCmd(t, "analyze", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 images failed") {
		t.Errorf("error = %v, want 1 of 2 failed", err)
	}
	if !strings.Contains(stdout, "== "+good+" ==") || !strings.Contains(stdout, "Sign in") {
		t.Errorf("stdout missing good image table:\n%s", stdout)
	}
	if !strings.Contains(stdout, "== "+bad+" ==\nerror:") {
		t.Errorf("stdout missing failure for bad image:\n%s", stdout)
	}
}

func TestAnalyze_UpstreamErrorUsesUserMessage(t *testing.T) {
	upErr := &vision.UpstreamError{Category: vision.CategoryRateLimited, StatusCode: http.StatusTooManyRequests}
	useAnalyzer(t, &mockAnalyzer{err: upErr})
	path := writePNG(t, t.TempDir(), "login.png")

	_, stderr, err := executeCmd(t, "analyze", "--format", "json", path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr, upErr.UserMessage()) {
		t.Errorf("stderr = %q, want %q", stderr, upErr.UserMessage())
	}
}

func TestAnalyze_CSV(t *testing.T) {
	useAnalyzer(t, &mockAnalyzer{result: &normalize.Result{Records: testRecords()}})
	path := writePNG(t, t.TempDir(), "login.png")

	stdout, _, err := executeCmd(t, "analyze", "--format", "csv", path)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	want, _ := table.New(testRecords()).CSV()
	if stdout != string(want) {
		t.Errorf("csv output:\n%s\nwant:\n%s", stdout, want)
	}
}

func TestAnalyze_FlagValidation(t *testing.T) {
	useAnalyzer(t, &mockAnalyzer{})
	dir := t.TempDir()
	a, b := writePNG(t, dir, "a.png"), writePNG(t, dir, "b.png")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"csv with two images", []string{"analyze", "--format", "csv", a, b}, "exactly one image"},
		{"unknown format", []string{"analyze", "--format", "xml", a}, "unknown format"},
		{"zero parallel", []string{"analyze", "--parallel", "0", a}, "at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCmd(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAnalyzeAll_RespectsLimit(t *testing.T) {
	m := &mockAnalyzer{result: &normalize.Result{}, delay: 20 * time.Millisecond}
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png"),
		writePNG(t, dir, "b.png"),
		writePNG(t, dir, "c.png"),
		writePNG(t, dir, "d.png"),
	}

	results := analyzeAll(context.Background(), m, paths, vision.DefaultMaxImageBytes, 2)

	if got := m.maxActive.Load(); got > 2 {
		t.Errorf("max concurrent analyses = %d, want <= 2", got)
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("results[%d].Path = %q, want %q (order must follow input)", i, r.Path, paths[i])
		}
	}
}

func TestReadImageFile_TooLarge(t *testing.T) {
	path := writePNG(t, t.TempDir(), "big.png")

	_, err := readImageFile(path, 10)
	if !errors.Is(err, vision.ErrImageTooLarge) {
		t.Errorf("error = %v, want ErrImageTooLarge", err)
	}
}

// --- Push Tests ---

func writeJSONFile(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "results.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestPush_SavesRecordSet(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotAuth string
		gotReq  client.SaveParams
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(client.SavedResult{ID: "r1", Items: gotReq.Items})
	}))
	defer srv.Close()

	file := writeJSONFile(t, map[string]any{"items": testRecords()})
	stdout, _, err := executeCmd(t, "push",
		"--server", srv.URL, "--api-key", "push-key", "--model", "gpt-4o",
		"--project", "p1", "--screen", "s1", "--file", file)
	if err != nil {
		t.Fatalf("push error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/api/v1/projects/p1/screens/s1/results" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer push-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Items) != 2 || gotReq.Model != "gpt-4o" {
		t.Errorf("request = %+v", gotReq)
	}
	if !strings.Contains(stdout, "Saved 2 elements") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestPush_PrintsFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"type":"https://mocklens.dev/errors/validation-error","title":"Validation Error","status":422,` +
			`"detail":"Record set contains invalid items","errors":[{"field":"items[0].ioRole","message":"must be one of: Input, Output"}]}`))
	}))
	defer srv.Close()

	file := writeJSONFile(t, testRecords())
	_, stderr, err := executeCmd(t, "push", "--server", srv.URL, "--project", "p1", "--screen", "s1", "--file", file)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("error = %v, want 422 APIError", err)
	}
	if !strings.Contains(stderr, "items[0].ioRole: must be one of") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestDecodeRecordFile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"content":"A"},{"content":"B"}]`, 2, false},
		{"items object", `{"items":[{"content":"A"}],"model":"gpt-4o"}`, 1, false},
		{"empty items", `{"items":[]}`, 0, false},
		{"leading whitespace", "\n  [ ]", 0, false},
		{"empty file", "  ", 0, true},
		{"object without items", `{"results":[]}`, 0, true},
		{"malformed", `[{"content":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecordFile([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}
