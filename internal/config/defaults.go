package config

import "github.com/danieljhkim/dualbuild/internal/variant"

const (
	// FileName is the project-level configuration file name.
	FileName = "dualbuild.toml"

	defaultUserConfigPath  = "~/.config/dualbuild/config.toml"
	defaultManifest        = "dualbuild.manifest.yaml"
	defaultOutputDir       = "out"
	defaultBuildCommand    = "npm"
	defaultPackageCommand  = "npx"
	defaultTailLines       = 40
	defaultGraceSeconds    = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultPackagePlatform = ""
)

// Default returns a Config populated with repository defaults. Path fields
// left empty are derived from the source root during normalization.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Manifest:  defaultManifest,
			OutputDir: defaultOutputDir,
		},
		Build: Build{
			Command:         defaultBuildCommand,
			Args:            []string{"run", "build"},
			CleanOutput:     true,
			OutputTailLines: defaultTailLines,
			GraceSeconds:    defaultGraceSeconds,
			Env: map[string]map[string]string{
				string(variant.TargetWeb):      {"NEXT_OUTPUT": "standalone"},
				string(variant.TargetElectron): {"NEXT_OUTPUT": "export"},
			},
		},
		Package: Package{
			Command:  defaultPackageCommand,
			Args:     []string{"electron-builder", "--dir"},
			Platform: defaultPackagePlatform,
		},
		Resolver: Resolver{
			GenericExtensions: append([]string(nil), variant.DefaultGenericExtensions...),
			ClientSubtrees:    append([]string(nil), variant.DefaultClientSubtrees...),
			Aliases:           map[string]string{"@/": "src/"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
