package platforms

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package platforms holds the connection/channel registry and the scrapers
// that turn a channel into raw posts.

const defaultIntervalSeconds = 900

// Channel is a single scrape target inside a connection.
type Channel struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Query           string         `json:"query" yaml:"query"`
	SourceURL       string         `json:"source_url" yaml:"source_url"`
	IntervalSeconds int            `json:"interval_seconds" yaml:"interval_seconds"`
	Config          map[string]any `json:"config" yaml:"config"`
}

// Connection binds a user's platform account to the channels scraped for it.
type Connection struct {
	ID       string    `json:"id" yaml:"id"`
	Platform string    `json:"platform" yaml:"platform"`
	UserID   string    `json:"user_id" yaml:"user_id"`
	Channels []Channel `json:"channels" yaml:"channels"`
}

type connectionsFile struct {
	Connections []Connection `json:"connections" yaml:"connections"`
}

// ConnectionRegistry materializes connection definitions loaded from config files.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections []Connection
	idx         map[string]Connection
}

// LoadConnections loads the connection registry from a YAML/JSON file.
// Channels that carry no interval of their own inherit defaultInterval.
func LoadConnections(path string, defaultInterval time.Duration) (*ConnectionRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("connections file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open connections file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read connections file: %w", err)
	}

	parsed, err := parseConnectionsFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Connections) == 0 {
		return nil, errors.New("connections file contains no connections entries")
	}

	defaultSeconds := int(defaultInterval / time.Second)
	if defaultSeconds <= 0 {
		defaultSeconds = defaultIntervalSeconds
	}

	reg := &ConnectionRegistry{
		connections: make([]Connection, len(parsed.Connections)),
		idx:         make(map[string]Connection, len(parsed.Connections)),
	}

	// Channel IDs key scheduler state, so they are unique across the file.
	channelIDs := make(map[string]string)
	for i := range parsed.Connections {
		conn := sanitizeConnection(parsed.Connections[i], defaultSeconds)
		if err := validateConnection(conn); err != nil {
			return nil, fmt.Errorf("connections[%d]: %w", i, err)
		}
		if _, exists := reg.idx[conn.ID]; exists {
			return nil, fmt.Errorf("duplicate connection id %q", conn.ID)
		}
		for _, ch := range conn.Channels {
			if owner, exists := channelIDs[ch.ID]; exists {
				return nil, fmt.Errorf("channel id %q appears in both connection %q and %q", ch.ID, owner, conn.ID)
			}
			channelIDs[ch.ID] = conn.ID
		}
		reg.connections[i] = conn
		reg.idx[conn.ID] = conn
	}

	return reg, nil
}

func parseConnectionsFile(data []byte, ext string) (connectionsFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed connectionsFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return connectionsFile{}, errors.New("connections file format not recognized (expected YAML or JSON)")
}

func sanitizeConnection(conn Connection, defaultSeconds int) Connection {
	conn.ID = strings.TrimSpace(conn.ID)
	conn.Platform = strings.ToLower(strings.TrimSpace(conn.Platform))
	conn.UserID = strings.TrimSpace(conn.UserID)

	for i := range conn.Channels {
		ch := conn.Channels[i]
		ch.ID = strings.TrimSpace(ch.ID)
		ch.Name = strings.TrimSpace(ch.Name)
		ch.Query = strings.TrimSpace(ch.Query)
		ch.SourceURL = strings.TrimSpace(ch.SourceURL)
		if ch.Config == nil {
			ch.Config = map[string]any{}
		}
		if ch.IntervalSeconds <= 0 {
			ch.IntervalSeconds = defaultSeconds
		}
		conn.Channels[i] = ch
	}

	return conn
}

func validateConnection(conn Connection) error {
	if conn.ID == "" {
		return errors.New("id is required")
	}
	if conn.Platform == "" {
		return fmt.Errorf("platform is required for connection %q", conn.ID)
	}
	if conn.UserID == "" {
		return fmt.Errorf("user_id is required for connection %q", conn.ID)
	}
	if len(conn.Channels) == 0 {
		return fmt.Errorf("connection %q declares no channels", conn.ID)
	}

	seen := make(map[string]struct{}, len(conn.Channels))
	for i, ch := range conn.Channels {
		if ch.ID == "" {
			return fmt.Errorf("connection %q channel[%d]: id is required", conn.ID, i)
		}
		if ch.Name == "" {
			return fmt.Errorf("connection %q channel %q: name is required", conn.ID, ch.ID)
		}
		if ch.SourceURL == "" {
			return fmt.Errorf("connection %q channel %q: source_url is required", conn.ID, ch.ID)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("connection %q: duplicate channel id %q", conn.ID, ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}

	return nil
}

// All returns a copy of the loaded connections.
func (r *ConnectionRegistry) All() []Connection {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// ByID returns the connection entry for the given id, if loaded.
func (r *ConnectionRegistry) ByID(id string) (Connection, bool) {
	if r == nil {
		return Connection{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Connection{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.idx[id]
	return conn, ok
}

// Interval returns the scrape cadence for the channel.
func (c Channel) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return defaultIntervalSeconds * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ConfigString returns the trimmed string value for key from the channel
// config map or a fallback.
func (c Channel) ConfigString(key, fallback string) string {
	if c.Config != nil {
		if raw, ok := c.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}
