package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
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

// execute runs the CLI with args and returns captured stdout, stderr and
// the command error.
func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr syncBuffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "boundfetch.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return p
}

// newContentServer serves path -> body, with /slow delayed and /missing 404.
func newContentServer(t *testing.T) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"/a":     "alpha",
		"/b":     "beta",
		"/hello": "hello",
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(30 * time.Millisecond)
			_, _ = w.Write([]byte("slow"))
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "boundfetch dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("version output = %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, context.Background(), "digest", "--log-level", "loud", "x")
	if err == nil || !strings.Contains(err.Error(), "invalid --log-level") {
		t.Errorf("error = %v, want invalid --log-level", err)
	}
}

// --- validate ---

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
concurrency: 6
policy: rolling
resources:
  - id: https://example.com/a
sets:
  - name: Mirror
    id_template: "https://{{.region}}.example.com/a"
    dimensions:
      region: [eu, us]
`)

	out, _, err := execute(t, context.Background(), "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{
		"Config is valid!",
		"Concurrency:   6",
		"Policy:        rolling",
		"Schedule:      @every 1m",
		"1 direct + 2 from sets = 3 total",
	} {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, out)
		}
	}
}

func TestRunValidate_Errors(t *testing.T) {
	invalid := writeConfig(t, `
resources:
  - name: no id
`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "invalid config", args: []string{"validate", "-c", invalid}, wantErr: "id is required"},
		{name: "missing file", args: []string{"validate", "-c", "/nonexistent/path/config.yaml"}, wantErr: "failed to read"},
		{name: "no config flag", args: []string{"validate"}, wantErr: "requires --config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, context.Background(), tt.args...)
			if err == nil {
				t.Fatal("validate command expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

// --- fetch ---

func TestFetch_Stdout(t *testing.T) {
	ts := newContentServer(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "bounded", args: []string{"-n", "2"}},
		{name: "sync", args: []string{"--sync"}},
		{name: "pool", args: []string{"-n", "3", "--policy", "pool"}},
		{name: "rolling budget one", args: []string{"-n", "1", "--policy", "rolling"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"fetch"}, tt.args...)
			args = append(args, ts.URL+"/slow", ts.URL+"/a", ts.URL+"/b")

			out, _, err := execute(t, context.Background(), args...)
			if err != nil {
				t.Fatalf("fetch error = %v", err)
			}
			if out != "slowalphabeta" {
				t.Errorf("stdout = %q, want bodies in input order", out)
			}
		})
	}
}

func TestFetch_OutDir(t *testing.T) {
	ts := newContentServer(t)
	dir := filepath.Join(t.TempDir(), "downloads")

	out, _, err := execute(t, context.Background(), "fetch", "--out", dir, ts.URL+"/a", ts.URL+"/b?v=2")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	for name, want := range map[string]string{"000-a": "alpha", "001-b": "beta"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if strings.Count(out, "\n") != 2 {
		t.Errorf("stdout = %q, want one line per file", out)
	}
}

func TestFetch_FromConfig(t *testing.T) {
	ts := newContentServer(t)
	path := writeConfig(t, `
concurrency: 2
resources:
  - id: `+ts.URL+`/b
  - id: `+ts.URL+`/a
`)

	out, _, err := execute(t, context.Background(), "fetch", "-c", path, "--progress")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if out != "betaalpha" {
		t.Errorf("stdout = %q, want %q", out, "betaalpha")
	}
}

func TestFetch_Errors(t *testing.T) {
	ts := newContentServer(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "failed fetch", args: []string{"fetch", ts.URL + "/a", ts.URL + "/missing"}, wantErr: "1 of 2 fetches failed"},
		{name: "zero budget", args: []string{"fetch", "-n", "0", ts.URL + "/a"}, wantErr: "invalid argument"},
		{name: "bad policy", args: []string{"fetch", "--policy", "lifo", ts.URL + "/a"}, wantErr: "unknown drain policy"},
		{name: "no ids", args: []string{"fetch"}, wantErr: "no resources"},
		{name: "sync failure", args: []string{"fetch", "--sync", ts.URL + "/missing"}, wantErr: "404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, context.Background(), tt.args...)
			if err == nil {
				t.Fatalf("fetch expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		i    int
		id   string
		want string
	}{
		{0, "https://example.com/dist/app.tar.gz", "000-app.tar.gz"},
		{1, "https://example.com/a?download=1#x", "001-a"},
		{2, "s3://bucket/dir/key with space.json", "002-key_with_space.json"},
		{3, "/var/data/schema.sql", "003-schema.sql"},
		{12, "https://example.com/", "012-example.com"},
		{4, "https://example.com/%%%", "004-resource"},
		{5, "..", "005-resource"},
	}

	for _, tt := range tests {
		if got := outputName(tt.i, tt.id); got != tt.want {
			t.Errorf("outputName(%d, %q) = %q, want %q", tt.i, tt.id, got, tt.want)
		}
	}
}

// --- digest ---

func TestDigest_SingleFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "lower", args: []string{"digest", p}, want: "5d41402abc4b2a76b9719d911017c592  " + p + "\n"},
		{name: "upper", args: []string{"digest", "--upper", p}, want: "5D41402ABC4B2A76B9719D911017C592  " + p + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, context.Background(), tt.args...)
			if err != nil {
				t.Fatalf("digest error = %v", err)
			}
			if out != tt.want {
				t.Errorf("stdout = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestDigest_Many(t *testing.T) {
	ts := newContentServer(t)
	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, context.Background(), "digest", "-n", "2", ts.URL+"/hello", empty)
	if err != nil {
		t.Fatalf("digest error = %v", err)
	}

	want := "5d41402abc4b2a76b9719d911017c592  " + ts.URL + "/hello\n" +
		"d41d8cd98f00b204e9800998ecf8427e  " + empty + "\n"
	if out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
}

func TestDigest_PartialFailure(t *testing.T) {
	ts := newContentServer(t)

	out, stderr, err := execute(t, context.Background(), "digest", ts.URL+"/hello", ts.URL+"/missing")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 digests failed") {
		t.Fatalf("error = %v, want 1 of 2 digests failed", err)
	}
	if !strings.Contains(out, "5d41402abc4b2a76b9719d911017c592") {
		t.Errorf("stdout = %q, want the successful digest", out)
	}
	if !strings.Contains(stderr, "/missing") {
		t.Errorf("stderr = %q, want the failing identifier", stderr)
	}
}

// --- watch ---

func TestWatch_RunsUntilCancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, `
resources:
  - id: `+src+`
    expected_md5: 5d41402abc4b2a76b9719d911017c592
watch:
  schedule: "@hourly"
  listen: 127.0.0.1:0
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, stderr, err := execute(t, ctx, "watch", "-c", path, "--log-level", "info")
	if err != nil {
		t.Fatalf("watch error = %v", err)
	}

	for _, want := range []string{"watch started", "watch cycle completed", `"match":1`, "shutdown complete"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("log output missing %q\nGot: %s", want, stderr)
		}
	}
}

func TestWatch_Errors(t *testing.T) {
	empty := writeConfig(t, `concurrency: 1`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no config", args: []string{"watch"}, wantErr: "requires --config"},
		{name: "no resources", args: []string{"watch", "-c", empty}, wantErr: "no resources configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, context.Background(), tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}
