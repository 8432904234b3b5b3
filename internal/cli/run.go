package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecmigrate"
	"github.com/hupe1980/vecmigrate/bootstrap"
	miniostore "github.com/hupe1980/vecmigrate/bootstrap/minio"
	s3store "github.com/hupe1980/vecmigrate/bootstrap/s3"
	"github.com/hupe1980/vecmigrate/checkpoint/ddb"
	"github.com/hupe1980/vecmigrate/remote"
	"github.com/hupe1980/vecmigrate/rowsource"
)

var runCmd = &cobra.Command{
	Use:   "run <dataset-dir>",
	Short: "Migrate a dataset into the target index",
	Long: `Run reads the VDF_META.json manifest in the dataset directory,
reconciles the target resources, and upserts every row.

The service connection is configured with --base-url and --parent; a
bearer token is taken from the VECMIGRATE_TOKEN environment variable.
Filter derivation (restricts, numeric restricts) is configured through a
YAML file passed with --config.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runFlags struct {
	baseURL string
	parent  string

	index    string
	endpoint string
	create   bool
	deploy   bool

	dimensions  int
	distance    string
	shardSize   string
	machineType string
	minReplicas int
	maxReplicas int

	batchSize   int
	maxInFlight int
	rateLimit   float64

	configPath string

	seedBackend   string
	seedBucket    string
	seedPrefix    string
	minioEndpoint string

	checkpointTable string
	runID           string

	verbose bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runFlags.baseURL, "base-url", "", "service API base URL (required)")
	f.StringVar(&runFlags.parent, "parent", "", "resource parent scope, e.g. projects/p/locations/l (required)")

	f.StringVar(&runFlags.index, "index", "", "target index name (default: first index in the manifest)")
	f.StringVar(&runFlags.endpoint, "endpoint", "", "endpoint name (default: <index>-endpoint)")
	f.BoolVar(&runFlags.create, "create", false, "create the index and endpoint when absent")
	f.BoolVar(&runFlags.deploy, "deploy", false, "deploy the index to its endpoint before ingesting")

	f.IntVar(&runFlags.dimensions, "dimensions", 0, "vector dimensionality for index creation (default: from manifest)")
	f.StringVar(&runFlags.distance, "distance-measure", "", "distance measure for index creation")
	f.StringVar(&runFlags.shardSize, "shard-size", "", "shard size for index creation")
	f.StringVar(&runFlags.machineType, "machine-type", "", "deployment machine type")
	f.IntVar(&runFlags.minReplicas, "min-replicas", 0, "minimum deployment replicas")
	f.IntVar(&runFlags.maxReplicas, "max-replicas", 0, "maximum deployment replicas")

	f.IntVar(&runFlags.batchSize, "batch-size", 0, "datapoints per upsert batch (default 100)")
	f.IntVar(&runFlags.maxInFlight, "max-in-flight", 0, "concurrent upsert batches (default 1)")
	f.Float64Var(&runFlags.rateLimit, "rate-limit", 0, "upsert calls per second (0 = unlimited)")

	f.StringVar(&runFlags.configPath, "config", "", "YAML file with filter and column settings")

	f.StringVar(&runFlags.seedBackend, "seed-backend", "", "object store for the new-index seed record: s3 or minio")
	f.StringVar(&runFlags.seedBucket, "seed-bucket", "", "bucket receiving the seed record")
	f.StringVar(&runFlags.seedPrefix, "seed-prefix", "", "key prefix for the seed record")
	f.StringVar(&runFlags.minioEndpoint, "minio-endpoint", "", "MinIO endpoint for --seed-backend=minio")

	f.StringVar(&runFlags.checkpointTable, "checkpoint-table", "", "DynamoDB table recording per-namespace progress")
	f.StringVar(&runFlags.runID, "run-id", "", "run identifier for checkpoints (default: derived from start time)")

	f.BoolVar(&runFlags.verbose, "verbose", false, "debug logging")

	_ = runCmd.MarkFlagRequired("base-url")
	_ = runCmd.MarkFlagRequired("parent")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dataset := args[0]

	cfg, err := loadRunConfig(runFlags.configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if runFlags.verbose {
		level = slog.LevelDebug
	}
	logger := vecmigrate.NewTextLogger(level)

	client := remote.NewRESTClient(runFlags.baseURL, runFlags.parent, tokenOption())

	opts := []vecmigrate.Option{
		vecmigrate.WithLogger(logger),
		vecmigrate.WithIndexName(runFlags.index),
		vecmigrate.WithBatchSize(runFlags.batchSize),
		vecmigrate.WithMaxInFlight(runFlags.maxInFlight),
		vecmigrate.WithFilterSpecs(cfg.Filters),
		vecmigrate.WithNumericFilterSpecs(cfg.NumericFilters),
		vecmigrate.WithCrowdingColumn(cfg.CrowdingColumn),
		vecmigrate.WithIDColumn(cfg.IDColumn),
	}

	if runFlags.endpoint != "" {
		opts = append(opts, vecmigrate.WithEndpointName(runFlags.endpoint))
	}
	if runFlags.create {
		opts = append(opts, vecmigrate.WithCreateIfAbsent(runFlags.dimensions))
	}
	if runFlags.deploy {
		opts = append(opts, vecmigrate.WithDeploy())
	}
	if runFlags.distance != "" {
		opts = append(opts, vecmigrate.WithDistanceMeasure(runFlags.distance))
	}
	if runFlags.shardSize != "" {
		opts = append(opts, vecmigrate.WithShardSize(runFlags.shardSize))
	}
	if runFlags.machineType != "" {
		opts = append(opts, vecmigrate.WithMachineType(runFlags.machineType))
	}
	if runFlags.minReplicas > 0 || runFlags.maxReplicas > 0 {
		opts = append(opts, vecmigrate.WithReplicas(runFlags.minReplicas, runFlags.maxReplicas))
	}
	if runFlags.rateLimit > 0 {
		opts = append(opts, vecmigrate.WithRateLimit(rate.NewLimiter(rate.Limit(runFlags.rateLimit), 1)))
	}

	awsOpts, err := awsBackedOptions(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, awsOpts...)

	mg, err := vecmigrate.New(client, rowsource.NewDirSource(dataset), opts...)
	if err != nil {
		return err
	}

	report, err := mg.Migrate(ctx, dataset)
	printReport(report)
	if err != nil {
		return fmt.Errorf("migration failed after %d rows: %w", report.Total, err)
	}
	return nil
}

// tokenOption wires the bearer token from the environment. An empty
// variable leaves requests unauthenticated, which suits local emulators.
func tokenOption() remote.RESTOption {
	token := os.Getenv("VECMIGRATE_TOKEN")
	if token == "" {
		return nil
	}
	return remote.WithTokenSource(func(context.Context) (string, error) {
		return token, nil
	})
}

// awsBackedOptions builds the seed-store and checkpoint options. The AWS
// configuration is loaded only when a flag actually needs it.
func awsBackedOptions(ctx context.Context) ([]vecmigrate.Option, error) {
	var opts []vecmigrate.Option

	var awsCfg aws.Config
	if runFlags.seedBackend == "s3" || runFlags.checkpointTable != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot load AWS configuration: %w", err)
		}
		awsCfg = cfg
	}

	switch runFlags.seedBackend {
	case "":
	case "s3":
		if runFlags.seedBucket == "" {
			return nil, fmt.Errorf("--seed-backend=s3 requires --seed-bucket")
		}
		store := s3store.NewStore(s3.NewFromConfig(awsCfg), runFlags.seedBucket, s3store.WithPrefix(runFlags.seedPrefix))
		opts = append(opts, vecmigrate.WithSeedStore(store, ""))
	case "minio":
		store, err := minioSeedStore()
		if err != nil {
			return nil, err
		}
		opts = append(opts, vecmigrate.WithSeedStore(store, ""))
	default:
		return nil, fmt.Errorf("unknown seed backend %q", runFlags.seedBackend)
	}

	if runFlags.checkpointTable != "" {
		runID := runFlags.runID
		if runID == "" {
			runID = time.Now().UTC().Format("20060102-150405")
		}
		store := ddb.NewStore(dynamodb.NewFromConfig(awsCfg), runFlags.checkpointTable)
		opts = append(opts, vecmigrate.WithCheckpointStore(store, runID))
	}

	return opts, nil
}

// minioSeedStore builds the MinIO-backed seed store from flags and the
// MINIO_ACCESS_KEY / MINIO_SECRET_KEY environment variables.
func minioSeedStore() (bootstrap.ObjectStore, error) {
	if runFlags.seedBucket == "" {
		return nil, fmt.Errorf("--seed-backend=minio requires --seed-bucket")
	}
	if runFlags.minioEndpoint == "" {
		return nil, fmt.Errorf("--seed-backend=minio requires --minio-endpoint")
	}

	client, err := minio.New(runFlags.minioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create MinIO client: %w", err)
	}
	return miniostore.NewStore(client, runFlags.seedBucket, runFlags.seedPrefix), nil
}

func printReport(report vecmigrate.Report) {
	namespaces := make([]string, 0, len(report.PerNamespace))
	for ns := range report.PerNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		fmt.Printf("  %-30s %d rows\n", ns, report.PerNamespace[ns])
	}
	fmt.Printf("Total: %d rows\n", report.Total)
}
