package config

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/vsoverseer/simcore/internal/models"
)

// Output formats for a run.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// RunOptions is the normalized set of inputs for one simulation run.
type RunOptions struct {
	Episodes int
	Seed     uint64
	Traits   models.TraitProfile

	// Format selects the rendering; anything other than FormatText is JSON.
	Format string

	// Record stores the run in the history store.
	Record bool

	// MetricsFile, when set, receives a Prometheus textfile for the run.
	MetricsFile string

	// ConfigPath overrides the config file location.
	ConfigPath string
}

// Normalize applies the silent substitution rules: a non-positive episode
// count becomes the default and traits are clamped (NaN becomes 0.5).
func (o RunOptions) Normalize(defaults RunDefaults) RunOptions {
	if o.Episodes < 1 {
		o.Episodes = defaults.Episodes
		if o.Episodes < 1 {
			o.Episodes = DefaultEpisodes
		}
	}
	o.Traits = o.Traits.Clamp()
	if o.Format != FormatText {
		o.Format = FormatJSON
	}
	return o
}

// firstValue is the value found for one key and whether the key appeared.
type firstValue struct {
	value string
	seen  bool
}

// ParseRunArgs reads the run flags out of args. It never fails: each key is
// looked up on its own, so an unknown flag, a bad value or a missing value
// cannot affect any other key. Unparsable or missing values fall back to
// defaults and the result is normalized.
func ParseRunArgs(args []string, defaults RunDefaults) RunOptions {
	opts := RunOptions{
		Episodes: parseInt(lookup(args, "--episodes"), defaults.Episodes),
		Seed:     parseUint(lookup(args, "--seed"), defaults.Seed),
		Traits: models.TraitProfile{
			Aggression: parseFloat(lookup(args, "--aggression"), defaults.Traits.Aggression),
			Greed:      parseFloat(lookup(args, "--greed"), defaults.Traits.Greed),
			Safety:     parseFloat(lookup(args, "--safety"), defaults.Traits.Safety),
			Focus:      parseFloat(lookup(args, "--focus"), defaults.Traits.Focus),
		},
		Format:      lookup(args, "--format").value,
		Record:      lookupBool(args, "--record"),
		MetricsFile: lookup(args, "--metrics-file").value,
		ConfigPath:  lookup(args, "--config").value,
	}
	return opts.Normalize(defaults)
}

// lookup finds the first token equal to key or of the form key=value. For
// the bare form the next token is the value, taken as is even when it looks
// like a flag. A bare key in last position has no value.
func lookup(args []string, key string) firstValue {
	for i, a := range args {
		if a == key {
			if i+1 < len(args) {
				return firstValue{value: args[i+1], seen: true}
			}
			return firstValue{}
		}
		if v, ok := strings.CutPrefix(a, key+"="); ok {
			return firstValue{value: v, seen: true}
		}
	}
	return firstValue{}
}

// lookupBool reports whether the switch key is set. It takes no value token;
// key=value is honored when value parses as a bool and is false otherwise.
func lookupBool(args []string, key string) bool {
	for _, a := range args {
		if a == key {
			return true
		}
		if v, ok := strings.CutPrefix(a, key+"="); ok {
			b, err := strconv.ParseBool(v)
			return err == nil && b
		}
	}
	return false
}

// ParseRunValues reads run inputs from query-style values (an HTTP query
// string or a decoded request body) with the same fallback rules as
// ParseRunArgs. Only the first value of each key counts.
func ParseRunValues(values map[string][]string, defaults RunDefaults) RunOptions {
	get := func(key string) firstValue {
		if v := values[key]; len(v) > 0 {
			return firstValue{value: v[0], seen: true}
		}
		return firstValue{}
	}

	opts := RunOptions{
		Episodes: parseInt(get("episodes"), defaults.Episodes),
		Seed:     parseUint(get("seed"), defaults.Seed),
		Traits: models.TraitProfile{
			Aggression: parseFloat(get("aggression"), defaults.Traits.Aggression),
			Greed:      parseFloat(get("greed"), defaults.Traits.Greed),
			Safety:     parseFloat(get("safety"), defaults.Traits.Safety),
			Focus:      parseFloat(get("focus"), defaults.Traits.Focus),
		},
		Format: get("format").value,
	}
	return opts.Normalize(defaults)
}

// FlagUsage lists the run flags for help output.
func FlagUsage() string {
	return "Flags:\n" + runFlags().FlagUsages()
}

// runFlags describes the run flags for help output. Parsing does not go
// through it; see ParseRunArgs.
func runFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("simcore", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Int("episodes", DefaultEpisodes, "number of episodes to generate")
	fs.Uint64("seed", DefaultSeed, "generator seed")
	fs.Float64("aggression", models.DefaultTrait, "aggression trait in [0, 1]")
	fs.Float64("greed", models.DefaultTrait, "greed trait in [0, 1]")
	fs.Float64("safety", models.DefaultTrait, "safety trait in [0, 1]")
	fs.Float64("focus", models.DefaultTrait, "focus trait in [0, 1]")
	fs.String("format", FormatJSON, "output format: json or text")
	fs.Bool("record", false, "store the run in the history store")
	fs.String("metrics-file", "", "write run metrics to a Prometheus textfile at `path`")
	fs.String("config", "", "config file `path`")
	return fs
}

func parseInt(v firstValue, def int) int {
	if !v.seen {
		return def
	}
	n, err := strconv.Atoi(v.value)
	if err != nil {
		return def
	}
	return n
}

func parseUint(v firstValue, def uint64) uint64 {
	if !v.seen {
		return def
	}
	n, err := strconv.ParseUint(v.value, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(v firstValue, def float64) float64 {
	if !v.seen {
		return def
	}
	f, err := strconv.ParseFloat(v.value, 64)
	if err != nil || math.IsNaN(f) {
		return def
	}
	return f
}
