package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zzenonn/zpool/internal/service"
)

// Discovery modes
const (
	DiscoveryFiles = "files"
	DiscoverySSM   = "ssm"
	DiscoveryTags  = "tags"
)

// Config holds the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	// Buffer is the number of bytes always kept free on every account.
	Buffer    int64  `yaml:"buffer"`
	Discovery string `yaml:"discovery"`
	// SessionsDir and SessionPattern locate session files for file discovery.
	SessionsDir    string `yaml:"sessions_dir"`
	SessionPattern string `yaml:"session_pattern"`
	SSMPath        string `yaml:"ssm_path"`
	PoolTag        string `yaml:"pool_tag"`
	PoolName       string `yaml:"pool_name"`
	QuotaTag       string `yaml:"quota_tag"`
	// StaleAfter forces a refresh of accounts whose capacity is older than
	// this before an operation. Zero trusts the cache until an explicit refresh.
	StaleAfter         time.Duration `yaml:"stale_after"`
	RefreshOnMiss      bool          `yaml:"refresh_on_miss"`
	RefreshConcurrency int           `yaml:"refresh_concurrency"`
	// LedgerTable is the DynamoDB table recording placements. Empty disables it.
	LedgerTable string `yaml:"ledger_table"`
	Quiet       bool   `yaml:"quiet"`
	// AwsConfig: shared AWS configuration for control-plane clients (SSM,
	// tagging, DynamoDB) and the base for S3 accounts without their own profile.
	AwsConfig aws.Config
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	v, err := setupViper(configPath, rootCmd)
	if err != nil {
		return nil, err
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	awsConfig, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	cfg.AwsConfig = awsConfig

	return cfg, nil
}

// setupViper configures a Viper instance with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v)
	v.SetEnvPrefix("zpool")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if rootCmd != nil {
		if err := bindFlags(v, rootCmd.PersistentFlags()); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return v, nil
}

// bindFlags binds each flag to the key with dashes replaced by underscores,
// so --log-level sets log_level.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("buffer", "100MiB")
	v.SetDefault("discovery", DiscoveryFiles)
	v.SetDefault("sessions_dir", defaultSessionsDir())
	v.SetDefault("session_pattern", "*.session")
	v.SetDefault("ssm_path", "/zpool/accounts")
	v.SetDefault("pool_tag", "zpool:pool")
	v.SetDefault("pool_name", "default")
	v.SetDefault("quota_tag", "zpool:quota")
	v.SetDefault("stale_after", "0s")
	v.SetDefault("refresh_on_miss", true)
	v.SetDefault("refresh_concurrency", 8)
	v.SetDefault("ledger_table", "")
	v.SetDefault("quiet", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	buffer, err := ParseSize(v.GetString("buffer"))
	if err != nil {
		return nil, fmt.Errorf("invalid buffer: %w", err)
	}

	discovery := strings.ToLower(v.GetString("discovery"))
	switch discovery {
	case DiscoveryFiles, DiscoverySSM, DiscoveryTags:
	default:
		return nil, fmt.Errorf("unsupported discovery mode: %s", discovery)
	}

	if v.GetInt("refresh_concurrency") < 0 {
		return nil, fmt.Errorf("refresh_concurrency must not be negative")
	}

	return &Config{
		LogLevel:           v.GetString("log_level"),
		Buffer:             buffer,
		Discovery:          discovery,
		SessionsDir:        expandHome(v.GetString("sessions_dir")),
		SessionPattern:     v.GetString("session_pattern"),
		SSMPath:            v.GetString("ssm_path"),
		PoolTag:            v.GetString("pool_tag"),
		PoolName:           v.GetString("pool_name"),
		QuotaTag:           v.GetString("quota_tag"),
		StaleAfter:         v.GetDuration("stale_after"),
		RefreshOnMiss:      v.GetBool("refresh_on_miss"),
		RefreshConcurrency: v.GetInt("refresh_concurrency"),
		LedgerTable:        v.GetString("ledger_table"),
		Quiet:              v.GetBool("quiet"),
	}, nil
}

// PoolOptions projects the settings the pool core needs
func (c *Config) PoolOptions() service.Options {
	return service.Options{
		Buffer:             c.Buffer,
		StaleAfter:         c.StaleAfter,
		RefreshOnMiss:      c.RefreshOnMiss,
		RefreshConcurrency: c.RefreshConcurrency,
	}
}

// loadAWSConfig loads AWS SDK configuration
func loadAWSConfig() (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %v", err)
	}
	return cfg, nil
}

// ParseSize parses a byte size such as "100MiB", "5GB" or "1048576"
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func defaultSessionsDir() string {
	return filepath.Join(xdg.ConfigHome, "zpool", "sessions")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
