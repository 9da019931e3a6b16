// Package config handles the command line tool's global configuration: flag
// definitions, environment variable bindings, and typed access to the
// resulting settings.
package config

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imageforge/imageforge-go/common/jsondoc"
	"github.com/imageforge/imageforge-go/common/logger"
	"github.com/imageforge/imageforge-go/common/platform"
	"github.com/imageforge/imageforge-go/store/pkg/index"
	"github.com/imageforge/imageforge-go/store/pkg/meta"
	"github.com/imageforge/imageforge-go/store/pkg/schema"
)

const (
	envVarPrefix = "IMAGEFORGE"

	WorkDirKey      = "workdir"
	ArchKey         = "arch"
	SchemaKey       = "schema"
	LogLevelKey     = "log.level"
	LogDeveloperKey = "log.developer"
	PrintJSONKey    = "print-json"
	PrettyKey       = "pretty"
	NumWorkersKey   = "num-workers"
)

// Global is the resolved tool-wide configuration.
type Global struct {
	WorkDir    string        `mapstructure:"workdir"`
	Arch       string        `mapstructure:"arch"`
	Schema     string        `mapstructure:"schema"`
	Log        logger.Config `mapstructure:"log"`
	PrintJSON  bool          `mapstructure:"print-json"`
	Pretty     bool          `mapstructure:"pretty"`
	NumWorkers int           `mapstructure:"num-workers"`
}

// InitGlobalFlags defines the global flags on the root command and binds them
// (and IMAGEFORGE_* environment variables) through viper.
func InitGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(WorkDirKey, ".", "The build root containing the builds/ directory.")
	cmd.PersistentFlags().String(ArchKey, platform.BaseArch(), "The default architecture for build operations.")
	cmd.PersistentFlags().String(SchemaKey, "", "Path to the metadata JSON-Schema. Empty selects the built-in schema; \"none\" disables validation.")
	cmd.PersistentFlags().Int8(LogLevelKey, 0, "Adjust the logging level (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).")
	cmd.PersistentFlags().Bool(LogDeveloperKey, false, "Enable logging at DebugLevel and above and print stack traces.")
	cmd.PersistentFlags().MarkHidden(LogDeveloperKey)
	cmd.PersistentFlags().Bool(PrintJSONKey, false, "Print output normally rendered as a table as JSON instead.")
	cmd.PersistentFlags().Bool(PrettyKey, false, "Indent JSON output.")
	cmd.PersistentFlags().Int(NumWorkersKey, 0, "The maximum number of workers when a command can work in parallel (default: number of CPUs).")

	viper.BindPFlags(cmd.PersistentFlags())
	viper.SetEnvPrefix(envVarPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "_"))
	viper.AutomaticEnv()
}

// Get unmarshals the bound configuration.
func Get() (*Global, error) {
	var cfg Global
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetLogger builds the logger for the current global config.
func GetLogger() (*logger.Logger, error) {
	cfg, err := Get()
	if err != nil {
		return nil, err
	}
	return logger.New(cfg.Log)
}

// OpenIndex opens the builds index for the configured build root.
func OpenIndex() (*index.Index, *Global, error) {
	cfg, err := Get()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	idx, err := index.New(index.Config{
		WorkDir: cfg.WorkDir,
		Arch:    cfg.Arch,
		Docs:    jsondoc.Default(),
		Log:     log.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return idx, cfg, nil
}

// OpenMeta resolves a build directory via the index and opens its metadata
// document.
func OpenMeta(buildID, arch string) (*meta.BuildMeta, string, error) {
	idx, cfg, err := OpenIndex()
	if err != nil {
		return nil, "", err
	}
	dir, err := idx.GetBuildDir(buildID, arch)
	if err != nil {
		return nil, "", err
	}
	validator, err := schema.New(cfg.Schema)
	if err != nil {
		return nil, "", err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, "", err
	}
	m, err := meta.New(meta.Config{
		Docs:      jsondoc.Default(),
		Validator: validator,
		Log:       log.Logger,
	}, dir)
	if err != nil {
		return nil, "", err
	}
	return m, dir, nil
}
