package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	minKeywordLen = 2
	maxKeywordLen = 50
)

// KeywordGroup is a named set of keywords a user watches for.
type KeywordGroup struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Active   bool     `json:"active" yaml:"active"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// UserKeywords holds all keyword groups declared for one user. At most one
// group is active at a time; only the active group drives matching.
type UserKeywords struct {
	UserID string         `json:"user_id" yaml:"user_id"`
	Groups []KeywordGroup `json:"groups" yaml:"groups"`
}

// keywordsFile represents the structure of the keywords configuration file.
type keywordsFile struct {
	Users []UserKeywords `json:"users" yaml:"users"`
}

// Registry materializes the keyword groups loaded from the keywords file.
type Registry struct {
	mu    sync.RWMutex
	users []UserKeywords
	idx   map[string]UserKeywords
}

// LoadRegistry loads the keyword registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("keywords file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}

	parsed, err := parseKeywordsFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Users) == 0 {
		return nil, errors.New("keywords file contains no users entries")
	}

	reg := &Registry{
		users: make([]UserKeywords, len(parsed.Users)),
		idx:   make(map[string]UserKeywords, len(parsed.Users)),
	}

	for i := range parsed.Users {
		user := sanitizeUser(parsed.Users[i])
		if err := validateUser(user); err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, exists := reg.idx[user.UserID]; exists {
			return nil, fmt.Errorf("duplicate user id %q", user.UserID)
		}
		reg.users[i] = user
		reg.idx[user.UserID] = user
	}

	return reg, nil
}

// parseKeywordsFile attempts to decode the keywords file content.
func parseKeywordsFile(data []byte, ext string) (keywordsFile, error) {
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
		var parsed keywordsFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return keywordsFile{}, errors.New("keywords file format not recognized (expected YAML or JSON)")
}

// sanitizeUser trims and normalizes one user's keyword groups.
func sanitizeUser(user UserKeywords) UserKeywords {
	user.UserID = strings.TrimSpace(user.UserID)

	groups := make([]KeywordGroup, len(user.Groups))
	for i, group := range user.Groups {
		group.ID = strings.TrimSpace(group.ID)
		group.Name = strings.TrimSpace(group.Name)

		kws := make([]string, 0, len(group.Keywords))
		for _, kw := range group.Keywords {
			kws = append(kws, strings.TrimSpace(kw))
		}
		group.Keywords = kws
		groups[i] = group
	}
	user.Groups = groups

	return user
}

// validateUser checks identifiers, keyword lengths, and the one-active-group rule.
func validateUser(user UserKeywords) error {
	if user.UserID == "" {
		return errors.New("user_id is required")
	}

	groupIDs := make(map[string]struct{}, len(user.Groups))
	activeCount := 0
	for i, group := range user.Groups {
		if group.ID == "" {
			return fmt.Errorf("groups[%d]: id is required for user %q", i, user.UserID)
		}
		if _, exists := groupIDs[group.ID]; exists {
			return fmt.Errorf("duplicate group id %q for user %q", group.ID, user.UserID)
		}
		groupIDs[group.ID] = struct{}{}

		if group.Active {
			activeCount++
		}
		if len(group.Keywords) == 0 {
			return fmt.Errorf("group %q for user %q has no keywords", group.ID, user.UserID)
		}
		for _, kw := range group.Keywords {
			if n := len([]rune(kw)); n < minKeywordLen || n > maxKeywordLen {
				return fmt.Errorf("group %q for user %q: keyword %q must be %d-%d characters after trimming",
					group.ID, user.UserID, kw, minKeywordLen, maxKeywordLen)
			}
		}
	}
	if activeCount > 1 {
		return fmt.Errorf("user %q has %d active keyword groups, at most one is allowed", user.UserID, activeCount)
	}

	return nil
}

// All returns all configured users and their groups.
func (r *Registry) All() []UserKeywords {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserKeywords, len(r.users))
	copy(out, r.users)
	return out
}

// ActiveKeywords returns a copy of the user's active keyword group, or nil
// when the user is unknown or has no active group.
func (r *Registry) ActiveKeywords(userID string) []string {
	if r == nil {
		return nil
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.idx[userID]
	if !ok {
		return nil
	}
	for _, group := range user.Groups {
		if !group.Active {
			continue
		}
		out := make([]string, len(group.Keywords))
		copy(out, group.Keywords)
		return out
	}
	return nil
}

// UserIDs returns the configured user ids in file order.
func (r *Registry) UserIDs() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user.UserID)
	}
	return out
}
