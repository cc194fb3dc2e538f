// Package config holds the assignment configuration: the path-ownership map,
// ad-hoc reviewer groups, and the vacation list. The configuration is an
// immutable value passed explicitly into every resolution call.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FallbackGroupName is the ad-hoc group consulted when neither an explicit
// request nor diff inference produced an assignee.
const FallbackGroupName = "fallback"

const defaultTeamsURL = "https://team-api.infra.rust-lang.org/v1/teams.json"

// AssignConfig configures reviewer selection for one repository.
type AssignConfig struct {
	// Owners maps gitignore-style path patterns to candidate reviewer names
	// (users, teams, or ad-hoc group names). Patterns are never mutated
	// after load.
	Owners map[string][]string `mapstructure:"owners"`

	// AdhocGroups maps group names to member names.
	AdhocGroups map[string][]string `mapstructure:"adhoc_groups"`

	// UsersOnVacation lists logins currently excluded from assignment.
	UsersOnVacation []string `mapstructure:"users_on_vacation"`

	// ContributingURL, when set, is linked from the new-contributor welcome.
	ContributingURL string `mapstructure:"contributing_url"`
}

// IsOnVacation reports whether the given login is on the vacation list.
func (c *AssignConfig) IsOnVacation(login string) bool {
	for _, user := range c.UsersOnVacation {
		if strings.EqualFold(user, login) {
			return true
		}
	}
	return false
}

// FallbackGroup returns the configured fallback group, if any.
func (c *AssignConfig) FallbackGroup() ([]string, bool) {
	group, ok := c.AdhocGroups[FallbackGroupName]
	return group, ok
}

// Config is the full bot configuration.
type Config struct {
	// BotLogin is the bot's own account, used for self-assignment fallback
	// and for ignoring the bot's own comments.
	BotLogin string `mapstructure:"bot_login"`

	// TeamsURL is the team directory endpoint.
	TeamsURL string `mapstructure:"teams_url"`

	Assign AssignConfig `mapstructure:"assign"`
}

// Load reads configuration from the given file (TOML or YAML, by extension).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("teams_url", defaultTeamsURL)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Assign.Owners == nil {
		cfg.Assign.Owners = map[string][]string{}
	}
	if cfg.Assign.AdhocGroups == nil {
		cfg.Assign.AdhocGroups = map[string][]string{}
	}
	if cfg.BotLogin == "" {
		return nil, fmt.Errorf("config %s: bot_login is required", path)
	}
	return &cfg, nil
}
