package platforms

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConnectionsFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write connections file: %v", err)
	}
	return file
}

func TestLoadConnectionsYAML(t *testing.T) {
	file := writeConnectionsFile(t, `
connections:
  - id: conn-slack
    platform: Slack
    user_id: "  u-1  "
    channels:
      - id: ch-golang
        name: "#golang-jobs"
        query: golang
        source_url: https://workspace.slack.com/archives/C01
        interval_seconds: 300
      - id: ch-devops
        name: "#devops"
        source_url: https://workspace.slack.com/archives/C02
        config:
          render_profile: desktop
`)

	reg, err := LoadConnections(file, 15*time.Minute)
	if err != nil {
		t.Fatalf("LoadConnections returned error: %v", err)
	}

	conns := reg.All()
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}

	conn, ok := reg.ByID("conn-slack")
	if !ok {
		t.Fatal("expected connection conn-slack to be loaded")
	}
	if conn.Platform != "slack" {
		t.Fatalf("expected platform lowered to slack, got %q", conn.Platform)
	}
	if conn.UserID != "u-1" {
		t.Fatalf("expected trimmed user id, got %q", conn.UserID)
	}
	if len(conn.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(conn.Channels))
	}

	if got := conn.Channels[0].Interval(); got != 5*time.Minute {
		t.Fatalf("expected explicit interval 5m, got %v", got)
	}
	if got := conn.Channels[1].Interval(); got != 15*time.Minute {
		t.Fatalf("expected inherited default interval 15m, got %v", got)
	}
	if got := conn.Channels[1].ConfigString("render_profile", ""); got != "desktop" {
		t.Fatalf("expected render_profile desktop, got %q", got)
	}
	if got := conn.Channels[1].ConfigString("missing", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback config value, got %q", got)
	}
}

func TestLoadConnectionsRejectsDuplicateChannelIDAcrossConnections(t *testing.T) {
	file := writeConnectionsFile(t, `
connections:
  - id: conn-a
    platform: slack
    user_id: u-1
    channels:
      - id: ch-shared
        name: one
        source_url: https://a.example
  - id: conn-b
    platform: linkedin
    user_id: u-2
    channels:
      - id: ch-shared
        name: two
        source_url: https://b.example
`)

	if _, err := LoadConnections(file, 0); err == nil {
		t.Fatal("expected duplicate channel id error, got nil")
	}
}

func TestLoadConnectionsRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"missing user_id": `
connections:
  - id: conn-a
    platform: slack
    channels:
      - id: ch-1
        name: one
        source_url: https://a.example
`,
		"missing channels": `
connections:
  - id: conn-a
    platform: slack
    user_id: u-1
`,
		"missing source_url": `
connections:
  - id: conn-a
    platform: slack
    user_id: u-1
    channels:
      - id: ch-1
        name: one
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			file := writeConnectionsFile(t, content)
			if _, err := LoadConnections(file, 0); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestChannelIntervalFallsBackToDefault(t *testing.T) {
	ch := Channel{ID: "ch-1"}
	if got := ch.Interval(); got != defaultIntervalSeconds*time.Second {
		t.Fatalf("expected package default interval, got %v", got)
	}
}
