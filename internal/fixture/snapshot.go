// Package fixture serves a provider's view of the syncing user from a local
// YAML or TOML snapshot. It lets the engine run against any provider without
// network access and backs the CLI's --fixture and --watch modes.
package fixture

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/reposync/internal/types"
)

// Snapshot is the on-disk fixture format.
//
//	provider: gitlab
//	user:
//	  id: "7"
//	  login: alice
//	  role: "50"
//	  repositories:
//	    - {id: "1", name: dotfiles, access_level: 50}
//	organizations:
//	  - id: "12"
//	    login: acme
//	    role: "40"
//	    members:
//	      - {id: "8", login: bob, permission: "30"}
type Snapshot struct {
	Provider      types.Provider `yaml:"provider" toml:"provider"`
	User          Account        `yaml:"user" toml:"user"`
	Organizations []Account      `yaml:"organizations" toml:"organizations"`
}

// Account is one account of the snapshot with everything visible under it.
type Account struct {
	ID        string            `yaml:"id" toml:"id"`
	Login     string            `yaml:"login" toml:"login"`
	Parent    string            `yaml:"parent,omitempty" toml:"parent,omitempty"`
	AvatarURL string            `yaml:"avatar_url,omitempty" toml:"avatar_url,omitempty"`
	URL       string            `yaml:"url,omitempty" toml:"url,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty" toml:"metadata,omitempty"`
	// Role is the syncing user's raw permission on the account. Empty means
	// the provider denies the lookup.
	Role         string       `yaml:"role,omitempty" toml:"role,omitempty"`
	Repositories []Repository `yaml:"repositories,omitempty" toml:"repositories,omitempty"`
	Members      []Member     `yaml:"members,omitempty" toml:"members,omitempty"`
}

// Repository is a repository with the syncing user's permissions on it.
type Repository struct {
	ID            string `yaml:"id" toml:"id"`
	Name          string `yaml:"name" toml:"name"`
	FullName      string `yaml:"full_name,omitempty" toml:"full_name,omitempty"`
	Language      string `yaml:"language,omitempty" toml:"language,omitempty"`
	DefaultBranch string `yaml:"default_branch,omitempty" toml:"default_branch,omitempty"`
	Visibility    string `yaml:"visibility,omitempty" toml:"visibility,omitempty"`
	Private       bool   `yaml:"private,omitempty" toml:"private,omitempty"`

	Admin       bool   `yaml:"admin,omitempty" toml:"admin,omitempty"`
	Maintain    bool   `yaml:"maintain,omitempty" toml:"maintain,omitempty"`
	Push        bool   `yaml:"push,omitempty" toml:"push,omitempty"`
	Triage      bool   `yaml:"triage,omitempty" toml:"triage,omitempty"`
	Pull        bool   `yaml:"pull,omitempty" toml:"pull,omitempty"`
	AccessLevel int    `yaml:"access_level,omitempty" toml:"access_level,omitempty"`
	Role        string `yaml:"role,omitempty" toml:"role,omitempty"`
}

// Member is an organization member.
type Member struct {
	ID         string `yaml:"id" toml:"id"`
	Login      string `yaml:"login" toml:"login"`
	Email      string `yaml:"email,omitempty" toml:"email,omitempty"`
	Permission string `yaml:"permission" toml:"permission"`
}

// Load reads a snapshot, choosing the decoder from the file extension.
func Load(path string) (*Snapshot, error) {
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	snap, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Parse decodes a snapshot. format is a file extension (".yaml", ".yml" or ".toml").
func Parse(data []byte, format string) (*Snapshot, error) {
	var snap Snapshot
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &snap)
		if err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("toml: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", format)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	if !s.Provider.IsValid() {
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.User.ID == "" {
		return fmt.Errorf("user.id is required")
	}
	seen := map[string]bool{s.User.ID: true}
	for _, org := range s.Organizations {
		if org.ID == "" {
			return fmt.Errorf("organization %q has no id", org.Login)
		}
		if seen[org.ID] {
			return fmt.Errorf("duplicate account id %q", org.ID)
		}
		seen[org.ID] = true
	}
	for _, org := range s.Organizations {
		if org.Parent != "" && !seen[org.Parent] {
			return fmt.Errorf("organization %q references unknown parent %q", org.Login, org.Parent)
		}
	}
	return nil
}
