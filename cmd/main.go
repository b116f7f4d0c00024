package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zpool/internal/config"
	"github.com/zzenonn/zpool/internal/discovery"
	"github.com/zzenonn/zpool/internal/domain"
	"github.com/zzenonn/zpool/internal/logging"
	"github.com/zzenonn/zpool/internal/repository/db"
	"github.com/zzenonn/zpool/internal/repository/objectstore"
	"github.com/zzenonn/zpool/internal/service"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:          "zpool",
	Short:        "Pool storage accounts and place files on the one that fits",
	Long:         "zpool manages a pool of capacity-limited storage accounts, picks the best-fitting account for each file and rotates to the next one when an account fills up",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	flags.String("log-level", "", "log level: trace, debug, info, warn or error")
	flags.String("buffer", "", "space reserved on every account, e.g. 100MiB")
	flags.String("discovery", "", "account discovery: files, ssm or tags")
	flags.String("sessions-dir", "", "directory holding account session files")
	flags.String("session-pattern", "", "glob matching session files")
	flags.String("ssm-path", "", "parameter path listing accounts for ssm discovery")
	flags.String("pool-name", "", "pool tag value for tags discovery")
	flags.Duration("stale-after", 0, "refresh accounts whose capacity is older than this")
	flags.String("ledger-table", "", "DynamoDB table recording placements")
	flags.BoolP("quiet", "q", false, "suppress progress bars")
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(configPath, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)
}

func newDiscoverer() service.Discoverer {
	switch cfg.Discovery {
	case config.DiscoverySSM:
		return discovery.NewSSMDiscoverer(ssm.NewFromConfig(cfg.AwsConfig), cfg.SSMPath)
	case config.DiscoveryTags:
		client := resourcegroupstaggingapi.NewFromConfig(cfg.AwsConfig)
		return discovery.NewTagDiscoverer(client, cfg.PoolTag, cfg.PoolName, cfg.QuotaTag)
	default:
		return discovery.NewFileDiscoverer(cfg.SessionsDir, cfg.SessionPattern)
	}
}

func newDialer() service.Dialer {
	factory := objectstore.NewAccountRepositoryFactory(cfg.AwsConfig, cfg.Quiet)
	return service.DialerFunc(func(ctx context.Context, src domain.AccountSource) (service.StorageClient, error) {
		repo, err := factory.Dial(ctx, src)
		if err != nil {
			return nil, err
		}
		return repo, nil
	})
}

func newRecorder() (service.PlacementRecorder, error) {
	if cfg.LedgerTable == "" {
		return nil, nil
	}
	dynamoDb, err := db.NewDatabase(cfg.AwsConfig, cfg.LedgerTable)
	if err != nil {
		return nil, err
	}
	return dynamoDb.Placements(), nil
}

// withPool runs fn against a freshly loaded pool and always releases it
func withPool(ctx context.Context, fn func(*service.Manager) error) error {
	recorder, err := newRecorder()
	if err != nil {
		return err
	}
	return service.WithPool(ctx, newDiscoverer(), newDialer(), recorder, cfg.PoolOptions(), fn)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
