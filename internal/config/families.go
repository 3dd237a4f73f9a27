package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FamilyOverride tunes one game family on top of its built-in descriptor.
// Zero values leave the descriptor untouched.
type FamilyOverride struct {
	Rounds    int           `mapstructure:"rounds"`
	RoundTime time.Duration `mapstructure:"round_time"`
	InviteTTL time.Duration `mapstructure:"invite_ttl"`
	Disabled  bool          `mapstructure:"disabled"`
}

// LoadFamilyOverrides reads the `families` section of a YAML/JSON/TOML file:
//
//	families:
//	  nhie:
//	    rounds: 20
//	    round_time: 12s
//	  scenario:
//	    invite_ttl: 48h
//
// An empty path returns no overrides.
func LoadFamilyOverrides(path string) (map[string]FamilyOverride, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]FamilyOverride{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read families file: %w", err)
	}
	out := map[string]FamilyOverride{}
	if err := v.UnmarshalKey("families", &out); err != nil {
		return nil, fmt.Errorf("decode families file: %w", err)
	}
	for id, o := range out {
		if o.Rounds < 0 || o.RoundTime < 0 || o.InviteTTL < 0 {
			return nil, fmt.Errorf("family %q: values must be >= 0", id)
		}
	}
	return out, nil
}
