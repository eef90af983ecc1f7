package config

import (
	"strings"
	"testing"

	"github.com/vsoverseer/simcore/internal/models"
)

func TestParseRunArgs(t *testing.T) {
	defaults := Default().Defaults

	tests := []struct {
		name         string
		args         []string
		wantEpisodes int
		wantSeed     uint64
		wantTraits   models.TraitProfile
	}{
		{
			name:         "no flags",
			args:         nil,
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "all flags",
			args:         []string{"--episodes", "5", "--seed", "42", "--aggression", "0.9", "--greed", "0.2", "--safety", "0.8", "--focus", "0.6"},
			wantEpisodes: 5,
			wantSeed:     42,
			wantTraits:   models.TraitProfile{Aggression: 0.9, Greed: 0.2, Safety: 0.8, Focus: 0.6},
		},
		{
			name:         "zero episodes falls back",
			args:         []string{"--episodes", "0"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "negative episodes falls back",
			args:         []string{"--episodes", "-3"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "unparsable episodes falls back",
			args:         []string{"--episodes", "abc", "--seed", "9"},
			wantEpisodes: 10,
			wantSeed:     9,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "unparsable seed falls back",
			args:         []string{"--seed", "-1"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "max seed",
			args:         []string{"--seed", "18446744073709551615"},
			wantEpisodes: 10,
			wantSeed:     18446744073709551615,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "trait clamped high and low",
			args:         []string{"--aggression", "5.0", "--safety", "-2"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.TraitProfile{Aggression: 1, Greed: 0.5, Safety: 0, Focus: 0.5},
		},
		{
			name:         "NaN trait defaults",
			args:         []string{"--greed", "NaN"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "trailing key without value",
			args:         []string{"--episodes", "3", "--seed"},
			wantEpisodes: 3,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"--verbose", "--episodes", "4", "--mode", "fast"},
			wantEpisodes: 4,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "first occurrence wins",
			args:         []string{"--seed", "7", "--seed", "8"},
			wantEpisodes: 10,
			wantSeed:     7,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "first occurrence wins across forms",
			args:         []string{"--episodes=3", "--episodes", "8"},
			wantEpisodes: 3,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "key followed by another flag takes it as its value",
			args:         []string{"--seed", "--episodes", "5"},
			wantEpisodes: 5,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "double dash is an ordinary token",
			args:         []string{"--", "--episodes", "3"},
			wantEpisodes: 3,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "bad record value does not affect other keys",
			args:         []string{"--record=maybe", "--episodes", "3"},
			wantEpisodes: 3,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "value that looks like a flag is consumed",
			args:         []string{"--episodes", "--seed", "--seed", "6"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.DefaultTraits(),
		},
		{
			name:         "extended flags without values do not affect traits",
			args:         []string{"--format", "--config", "--metrics-file", "--focus", "0.25"},
			wantEpisodes: 10,
			wantSeed:     1,
			wantTraits:   models.TraitProfile{Aggression: 0.5, Greed: 0.5, Safety: 0.5, Focus: 0.25},
		},
		{
			name:         "equals form with empty value falls back",
			args:         []string{"--episodes=", "--seed=12"},
			wantEpisodes: 10,
			wantSeed:     12,
			wantTraits:   models.DefaultTraits(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRunArgs(tt.args, defaults)
			if got.Episodes != tt.wantEpisodes {
				t.Errorf("Episodes = %d, want %d", got.Episodes, tt.wantEpisodes)
			}
			if got.Seed != tt.wantSeed {
				t.Errorf("Seed = %d, want %d", got.Seed, tt.wantSeed)
			}
			if got.Traits != tt.wantTraits {
				t.Errorf("Traits = %s, want %s", got.Traits, tt.wantTraits)
			}
		})
	}
}

func TestParseRunArgs_ExtendedFlags(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		wantFormat      string
		wantRecord      bool
		wantMetricsFile string
		wantConfigPath  string
	}{
		{
			name:            "space separated",
			args:            []string{"--format", "text", "--record", "--metrics-file", "/tmp/m.prom", "--config", "c.yaml"},
			wantFormat:      FormatText,
			wantRecord:      true,
			wantMetricsFile: "/tmp/m.prom",
			wantConfigPath:  "c.yaml",
		},
		{
			name:            "equals form",
			args:            []string{"--format=text", "--record=true", "--metrics-file=/tmp/m.prom", "--config=c.yaml"},
			wantFormat:      FormatText,
			wantRecord:      true,
			wantMetricsFile: "/tmp/m.prom",
			wantConfigPath:  "c.yaml",
		},
		{
			name:       "record false",
			args:       []string{"--record=false", "--format", "text"},
			wantFormat: FormatText,
		},
		{
			name:       "unparsable record is off",
			args:       []string{"--record=maybe", "--format=text"},
			wantFormat: FormatText,
		},
		{
			name:           "record takes no value token",
			args:           []string{"--record", "--config", "c.yaml"},
			wantFormat:     FormatJSON,
			wantRecord:     true,
			wantConfigPath: "c.yaml",
		},
		{
			name:            "value that looks like a flag",
			args:            []string{"--config", "--metrics-file", "--metrics-file", "m.prom"},
			wantFormat:      FormatJSON,
			wantMetricsFile: "--metrics-file",
			wantConfigPath:  "--metrics-file",
		},
		{
			name:            "after double dash",
			args:            []string{"--", "--format", "text", "--record", "--metrics-file", "m.prom"},
			wantFormat:      FormatText,
			wantRecord:      true,
			wantMetricsFile: "m.prom",
		},
		{
			name:       "trailing keys without values",
			args:       []string{"--format=text", "--config"},
			wantFormat: FormatText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRunArgs(tt.args, Default().Defaults)
			if got.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", got.Format, tt.wantFormat)
			}
			if got.Record != tt.wantRecord {
				t.Errorf("Record = %v, want %v", got.Record, tt.wantRecord)
			}
			if got.MetricsFile != tt.wantMetricsFile {
				t.Errorf("MetricsFile = %q, want %q", got.MetricsFile, tt.wantMetricsFile)
			}
			if got.ConfigPath != tt.wantConfigPath {
				t.Errorf("ConfigPath = %q, want %q", got.ConfigPath, tt.wantConfigPath)
			}
		})
	}
}

func TestFlagUsage(t *testing.T) {
	usage := FlagUsage()
	for _, want := range []string{"--episodes", "--seed", "--aggression", "--greed", "--safety", "--focus", "--format", "--record", "--metrics-file", "--config", "(default 10)"} {
		if !strings.Contains(usage, want) {
			t.Errorf("FlagUsage() missing %q:\n%s", want, usage)
		}
	}
}

func TestParseRunArgs_UnknownFormatIsJSON(t *testing.T) {
	got := ParseRunArgs([]string{"--format", "xml"}, Default().Defaults)
	if got.Format != FormatJSON {
		t.Errorf("Format = %q, want json", got.Format)
	}
}

func TestParseRunArgs_ConfiguredDefaults(t *testing.T) {
	defaults := RunDefaults{
		Episodes: 3,
		Seed:     77,
		Traits:   models.TraitProfile{Aggression: 0.1, Greed: 0.2, Safety: 0.3, Focus: 0.4},
	}
	got := ParseRunArgs([]string{"--episodes", "bad", "--focus", "0.9"}, defaults)

	if got.Episodes != 3 || got.Seed != 77 {
		t.Errorf("got episodes=%d seed=%d, want 3/77", got.Episodes, got.Seed)
	}
	want := models.TraitProfile{Aggression: 0.1, Greed: 0.2, Safety: 0.3, Focus: 0.9}
	if got.Traits != want {
		t.Errorf("Traits = %s, want %s", got.Traits, want)
	}
}

func TestParseRunValues(t *testing.T) {
	defaults := Default().Defaults
	got := ParseRunValues(map[string][]string{
		"episodes":   {"4", "9"},
		"seed":       {"18446744073709551615"},
		"aggression": {"1.7"},
		"greed":      {"nope"},
		"ignored":    {"x"},
	}, defaults)

	if got.Episodes != 4 {
		t.Errorf("Episodes = %d, want first value 4", got.Episodes)
	}
	if got.Seed != 18446744073709551615 {
		t.Errorf("Seed = %d", got.Seed)
	}
	if got.Traits.Aggression != 1 || got.Traits.Greed != 0.5 {
		t.Errorf("Traits = %s", got.Traits)
	}

	empty := ParseRunValues(nil, defaults)
	if empty.Episodes != 10 || empty.Seed != 1 || empty.Traits != models.DefaultTraits() || empty.Format != FormatJSON {
		t.Errorf("ParseRunValues(nil) = %+v", empty)
	}

	zero := ParseRunValues(map[string][]string{"episodes": {"0"}}, defaults)
	if zero.Episodes != 10 {
		t.Errorf("zero episodes = %d, want default 10", zero.Episodes)
	}
}
