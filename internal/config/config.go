// Package config loads the pipeline configuration through viper.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tendant/tenx-pipeline/internal/dbosruntime"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/internal/samples"
)

// Config is the complete pipeline configuration
type Config struct {
	Paths        PathsConfig        `mapstructure:"paths" yaml:"paths"`
	Realm        RealmConfig        `mapstructure:"realm" yaml:"realm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Executor     ExecutorConfig     `mapstructure:"executor" yaml:"executor"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	DBOS         dbosruntime.Config `mapstructure:"dbos" yaml:"dbos"`
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// PathsConfig locates inputs and outputs on the shared filesystem
type PathsConfig struct {
	// TenxDir is where project output directories are created
	TenxDir string `mapstructure:"tenx_dir" yaml:"tenx_dir"`
	// SeqRootDir holds demultiplexed FASTQ files per project and sample
	SeqRootDir string `mapstructure:"seq_root_dir" yaml:"seq_root_dir"`
	// InboxDir is watched for new project documents; empty disables the watcher
	InboxDir string `mapstructure:"inbox_dir" yaml:"inbox_dir"`
	// DecisionTable is the JSON decision table file
	DecisionTable string `mapstructure:"decision_table" yaml:"decision_table"`
	// JobTemplate is the job script template; empty uses the built-in one
	JobTemplate string `mapstructure:"job_template" yaml:"job_template"`
}

// RealmConfig holds the classification settings of the 10x realm
type RealmConfig struct {
	Methods              []project.MethodRule `mapstructure:"methods" yaml:"methods"`
	RequiredFields       []string             `mapstructure:"required_fields" yaml:"required_fields"`
	FeatureMap           FeatureMapConfig     `mapstructure:"feature_map" yaml:"feature_map"`
	StrictSuffixMatching bool                 `mapstructure:"strict_suffix_matching" yaml:"strict_suffix_matching"`
	// CustomerNameAlias groups old_format subsamples under the record whose
	// customer name matches their original id
	CustomerNameAlias    bool                         `mapstructure:"legacy_customer_name_alias" yaml:"legacy_customer_name_alias"`
	FeatureToLibraryType map[string]string            `mapstructure:"feature_to_library_type" yaml:"feature_to_library_type"`
	FeatureToRefKey      map[string]string            `mapstructure:"feature_to_ref_key" yaml:"feature_to_ref_key"`
	ReferenceMapping     map[string]map[string]string `mapstructure:"reference_mapping" yaml:"reference_mapping"`
}

// FeatureMapConfig maps naming conventions to features. OldFormat is a list
// so the order rules are tried in is the configured order.
type FeatureMapConfig struct {
	OldFormat []samples.FeatureRule `mapstructure:"old_format" yaml:"old_format"`
	NewFormat map[string]string     `mapstructure:"new_format" yaml:"new_format"`
}

// OrchestratorConfig bounds sample fan-out
type OrchestratorConfig struct {
	// MaxParallel is the number of samples processed at once; 0 runs every
	// sample of a project at once
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`
}

// ExecutorConfig selects how job scripts run
type ExecutorConfig struct {
	Kind           string        `mapstructure:"kind" yaml:"kind"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// StoreConfig selects the document store
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// HTTPConfig configures the trigger server
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			TenxDir:       "/data/tenx",
			SeqRootDir:    "/data/seq",
			DecisionTable: "10x_decision_table.json",
		},
		Realm: RealmConfig{
			Methods: []project.MethodRule{{Method: "10X Chromium", Prefix: true}},
			RequiredFields: []string{
				"project_name",
				"project_id",
				"details.library_construction_method",
			},
			FeatureMap: FeatureMapConfig{
				OldFormat: []samples.FeatureRule{
					{Suffix: "HTO", Feature: "hashing"},
					{Suffix: "CITE", Feature: "cite"},
					{Suffix: "ADT", Feature: "cite"},
					{Suffix: "VDJ", Feature: "vdj"},
					{Suffix: "FB", Feature: "feature"},
				},
				NewFormat: map[string]string{
					"1": "vdj",
					"2": "hashing",
					"3": "cite",
					"4": "feature",
				},
			},
			FeatureToLibraryType: map[string]string{
				"gex":     "Gene Expression",
				"hashing": "Antibody Capture",
				"cite":    "Antibody Capture",
				"feature": "CRISPR Guide Capture",
				"vdj":     "VDJ",
				"atac":    "Chromatin Accessibility",
			},
			FeatureToRefKey: map[string]string{
				"gex":  "gex",
				"vdj":  "vdj",
				"atac": "atac",
			},
			ReferenceMapping: map[string]map[string]string{},
		},
		Executor: ExecutorConfig{
			Kind:           "slurm",
			PollInterval:   30 * time.Second,
			CommandTimeout: 8 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "tenx-pipeline.db",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("paths.tenx_dir", defaults.Paths.TenxDir)
	viper.SetDefault("paths.seq_root_dir", defaults.Paths.SeqRootDir)
	viper.SetDefault("paths.inbox_dir", defaults.Paths.InboxDir)
	viper.SetDefault("paths.decision_table", defaults.Paths.DecisionTable)
	viper.SetDefault("paths.job_template", defaults.Paths.JobTemplate)

	viper.SetDefault("realm.methods", defaults.Realm.Methods)
	viper.SetDefault("realm.required_fields", defaults.Realm.RequiredFields)
	viper.SetDefault("realm.feature_map.old_format", defaults.Realm.FeatureMap.OldFormat)
	viper.SetDefault("realm.feature_map.new_format", defaults.Realm.FeatureMap.NewFormat)
	viper.SetDefault("realm.strict_suffix_matching", defaults.Realm.StrictSuffixMatching)
	viper.SetDefault("realm.legacy_customer_name_alias", defaults.Realm.CustomerNameAlias)
	viper.SetDefault("realm.feature_to_library_type", defaults.Realm.FeatureToLibraryType)
	viper.SetDefault("realm.feature_to_ref_key", defaults.Realm.FeatureToRefKey)
	viper.SetDefault("realm.reference_mapping", defaults.Realm.ReferenceMapping)

	viper.SetDefault("orchestrator.max_parallel", defaults.Orchestrator.MaxParallel)

	viper.SetDefault("executor.kind", defaults.Executor.Kind)
	viper.SetDefault("executor.poll_interval", defaults.Executor.PollInterval)
	viper.SetDefault("executor.command_timeout", defaults.Executor.CommandTimeout)

	viper.SetDefault("store.driver", defaults.Store.Driver)
	viper.SetDefault("store.dsn", defaults.Store.DSN)

	viper.SetDefault("dbos.database_url", "")
	viper.SetDefault("dbos.app_name", "")
	viper.SetDefault("dbos.queue_name", "")
	viper.SetDefault("dbos.concurrency", 0)
	viper.SetDefault("dbos.application_version", "")

	viper.SetDefault("http.addr", defaults.HTTP.Addr)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tenx-pipeline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tenx-pipeline"
	}
	return filepath.Join(home, ".config", "tenx-pipeline")
}
