package main

import (
	"strings"
	"testing"

	"github.com/zulandar/intake/internal/config"
	"github.com/zulandar/intake/internal/store"
)

// --- db ---

func TestDBMigrate(t *testing.T) {
	_, cfgPath := startService(t)

	out, err := runCmd(t, "", "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 2 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}
}

func TestDBPrune(t *testing.T) {
	_, cfgPath := startService(t)

	out, err := runCmd(t, "", "db", "prune", "--keep-days", "7", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 0 sessions older than 7 days") {
		t.Errorf("output = %q", out)
	}
}

// --- sessions ---

func TestSessionsList_Empty(t *testing.T) {
	_, cfgPath := startService(t)

	out, err := runCmd(t, "", "sessions", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("output = %q", out)
	}
}

func TestSessionsShow(t *testing.T) {
	_, cfgPath := startService(t, radioReply, summaryReply)
	if _, err := runCmd(t, "A pipe burst\nYes\n", "chat", "-c", cfgPath); err != nil {
		t.Fatalf("chat: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	st, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := st.List(store.ListOpts{Source: chatSource})
	if err != nil || len(rows) != 1 {
		t.Fatalf("List = %v, %v", rows, err)
	}

	out, err := runCmd(t, "", "sessions", "show", rows[0].Handle, "-c", cfgPath)
	if err != nil {
		t.Fatalf("sessions show: %v", err)
	}
	for _, want := range []string{
		"Session:  " + rows[0].Handle,
		"Status:   completed",
		"Transcript (4 messages):",
		"you: A pipe burst",
		"bot: Married?",
		"you: Yes",
		"bot: Claim for a burst pipe, married.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSessionsShow_RemoteIDOfUnfinishedSession(t *testing.T) {
	_, cfgPath := startService(t, radioReply)
	if _, err := runCmd(t, "A pipe burst\n/quit\n", "chat", "-c", cfgPath); err != nil {
		t.Fatalf("chat: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	st, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := st.List(store.ListOpts{Source: chatSource})
	if err != nil || len(rows) != 1 {
		t.Fatalf("List = %v, %v", rows, err)
	}

	out, err := runCmd(t, "", "sessions", "show", rows[0].Handle, "-c", cfgPath)
	if err != nil {
		t.Fatalf("sessions show: %v", err)
	}
	for _, want := range []string{"Status:   abandoned", "Remote:   s1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSessionsShow_NotFound(t *testing.T) {
	_, cfgPath := startService(t)

	_, err := runCmd(t, "", "sessions", "show", "nope", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

// --- bridge ---

func TestBridge_NoPlatform(t *testing.T) {
	_, cfgPath := startService(t)

	_, err := runCmd(t, "", "bridge", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "no platform configured") {
		t.Errorf("error = %v, want no platform error", err)
	}
}

func TestCreateAdapter(t *testing.T) {
	tests := []struct {
		platform string
		wantErr  bool
	}{
		{"slack", false},
		{"discord", false},
		{"irc", true},
	}
	for _, tt := range tests {
		cfg := &config.Config{Bridge: config.BridgeConfig{
			Platform: tt.platform,
			Channel:  "C1",
			Slack:    config.SlackConfig{AppToken: "xapp-1", BotToken: "xoxb-1"},
			Discord:  config.DiscordConfig{BotToken: "token"},
		}}
		a, err := createAdapter(cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.platform, err, tt.wantErr)
		}
		if !tt.wantErr && a == nil {
			t.Errorf("%s: nil adapter", tt.platform)
		}
	}
}

// --- serve ---

func TestServeCmd_DefaultPort(t *testing.T) {
	flag := newServeCmd().Flags().Lookup("port")
	if flag == nil {
		t.Fatal("--port flag not found")
	}
	if flag.DefValue != "8080" {
		t.Errorf("default port = %q, want %q", flag.DefValue, "8080")
	}
}

// --- wiring ---

func TestNewGateway_OAuth2(t *testing.T) {
	cfg, err := config.Parse([]byte("service:\n  oauth2:\n    token_url: https://auth.example.com/token\n    client_id: id\n    client_secret: secret\n"))
	if err != nil {
		t.Fatal(err)
	}
	if newGateway(cfg, nil) == nil {
		t.Error("newGateway returned nil")
	}
}

func TestStartTracing_Disabled(t *testing.T) {
	cfg, _ := config.Parse(nil)
	stop := startTracing(cfg, nil)
	stop()
}
