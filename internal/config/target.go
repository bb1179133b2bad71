package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/danieljhkim/dualbuild/internal/variant"
)

// TargetEnv is the variable that selects the build target.
const TargetEnv = variant.EnvTarget

// TargetSource says where the build target came from.
type TargetSource string

const (
	SourceFlag    TargetSource = "flag"
	SourceEnv     TargetSource = "environment"
	SourceDotEnv  TargetSource = ".env"
	SourceDefault TargetSource = "default"
)

// TargetSelection is the resolved build target for one invocation.
type TargetSelection struct {
	Target variant.Target
	Source TargetSource

	// Raw is the selector value as found, before parsing.
	Raw string

	// Recognized is false when Raw named no known target and the default
	// was used instead.
	Recognized bool
}

// ResolveTarget determines the build target. An explicit flag wins, then
// the process environment, then the .env file in sourceRoot. The .env file
// is only read; nothing is exported into the process environment. lookup is
// typically os.LookupEnv.
func ResolveTarget(flag, sourceRoot string, lookup func(string) (string, bool)) (TargetSelection, error) {
	raw, source := strings.TrimSpace(flag), SourceFlag

	if raw == "" {
		if v, ok := lookup(TargetEnv); ok && strings.TrimSpace(v) != "" {
			raw, source = v, SourceEnv
		}
	}
	if raw == "" {
		vars, err := godotenv.Read(filepath.Join(sourceRoot, ".env"))
		switch {
		case err == nil:
			if v := strings.TrimSpace(vars[TargetEnv]); v != "" {
				raw, source = v, SourceDotEnv
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return TargetSelection{}, fmt.Errorf("read .env: %w", err)
		}
	}
	if raw == "" {
		source = SourceDefault
	}

	target, ok := variant.ParseTarget(raw)
	if !ok && source == SourceFlag {
		return TargetSelection{}, fmt.Errorf("unknown target %q (want web or electron)", raw)
	}
	return TargetSelection{Target: target, Source: source, Raw: raw, Recognized: ok}, nil
}
