package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// --- Helpers ---

// runCmd executes the root command with args and stdin, returning combined output.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// dialogueService is a scripted stand-in for the remote dialogue service.
type dialogueService struct {
	mu    sync.Mutex
	calls []string // "endpoint answer"
	// replies is consumed in order, one per call.
	replies []string
}

func (d *dialogueService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)

	d.mu.Lock()
	defer d.mu.Unlock()
	answer, _ := body["answer"].(string)
	if desc, ok := body["description"].(string); ok {
		answer = desc
	}
	d.calls = append(d.calls, r.URL.Path+" "+answer)
	if len(d.replies) == 0 {
		http.Error(w, "no scripted reply", http.StatusInternalServerError)
		return
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, reply)
}

func (d *dialogueService) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// writeConfig writes an intake.yaml pointing at baseURL with a sqlite
// database in a temp dir, and returns its path.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "intake.yaml")
	yaml := fmt.Sprintf("service:\n  base_url: %s\nstorage:\n  driver: sqlite\n  dsn: %s\n",
		baseURL, filepath.Join(dir, "intake.db"))
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startService(t *testing.T, replies ...string) (*dialogueService, string) {
	t.Helper()
	svc := &dialogueService{replies: replies}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, writeConfig(t, srv.URL)
}

// --- Root / version ---

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "intake dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("version output = %q", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, want := range []string{"intake 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"version": false, "chat": false, "serve": false, "bridge": false, "db": false, "sessions": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestCommands_ConfigFlag(t *testing.T) {
	for _, c := range []*cobra.Command{newChatCmd(), newServeCmd(), newBridgeCmd(), newDBMigrateCmd(), newDBPruneCmd(), newSessionsListCmd(), newSessionsShowCmd()} {
		flag := c.Flags().Lookup("config")
		if flag == nil {
			t.Errorf("%s: --config flag not found", c.Name())
			continue
		}
		if flag.Shorthand != "c" || flag.DefValue != "intake.yaml" {
			t.Errorf("%s: --config = -%s %q", c.Name(), flag.Shorthand, flag.DefValue)
		}
	}
}

func TestCommands_MissingExplicitConfig(t *testing.T) {
	for _, args := range [][]string{
		{"chat", "--config", "/nonexistent/intake.yaml"},
		{"serve", "--config", "/nonexistent/intake.yaml"},
		{"bridge", "--config", "/nonexistent/intake.yaml"},
		{"db", "migrate", "-c", "/nonexistent/intake.yaml"},
		{"sessions", "list", "-c", "/nonexistent/intake.yaml"},
	} {
		_, err := runCmd(t, "", args...)
		if err == nil || !strings.Contains(err.Error(), "load config") {
			t.Errorf("%v: error = %v, want load config error", args, err)
		}
	}
}
