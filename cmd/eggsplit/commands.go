package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eggsplit/internal/models"
	"eggsplit/pkg/config"
	"eggsplit/pkg/export"
	"eggsplit/pkg/logging"
	"eggsplit/pkg/nifti"
	"eggsplit/pkg/pipeline"
)

const (
	// Flags.
	flagConfig           = "config"
	flagLogLevel         = "log-level"
	flagLogDir           = "log-dir"
	flagQuiet            = "quiet"
	flagInput            = "input"
	flagOutput           = "output"
	flagSigma            = "sigma"
	flagExpected         = "expected"
	flagRowTolerance     = "row-tolerance"
	flagPadding          = "padding"
	flagCompress         = "compress"
	flagPreviews         = "previews"
	flagSlices           = "slices"
	flagNoManifest       = "no-manifest"
	flagSaveIntermediary = "save-intermediary"
	flagIntermediaryDir  = "intermediary-dir"
	flagJobs             = "jobs"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "eggsplit",
		Usage: "split a tray scan into one labeled volume per egg",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (YAML, or TOML by extension)",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagLogDir,
				Usage: "directory for pipeline.log",
			},
			&cli.BoolFlag{
				Name:    flagQuiet,
				Aliases: []string{"q"},
				Usage:   "log to the file only",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "segment a single scan",
				Flags:  append([]cli.Flag{inputFlag()}, runFlags()...),
				Action: runAction,
			},
			{
				Name:      "batch",
				Usage:     "segment several scans concurrently, one output subdirectory each",
				ArgsUsage: "SCAN [SCAN...]",
				Flags: append(runFlags(), &cli.IntFlag{
					Name:    flagJobs,
					Aliases: []string{"j"},
					Value:   2,
					Usage:   "number of scans processed at once",
				}),
				Action: batchAction,
			},
			{
				Name:      "init-config",
				Usage:     "write a configuration file with default values",
				ArgsUsage: "[FILE]",
				Action:    initConfigAction,
			},
		},
	}
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flagInput,
		Aliases: []string{"i"},
		Usage:   "tray scan `FILE` (.nii or .nii.gz)",
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "output `DIR`"},
		&cli.Float64Flag{Name: flagSigma, Usage: "Gaussian smoothing sigma in voxels"},
		&cli.IntFlag{Name: flagExpected, Aliases: []string{"n"}, Usage: "expected number of eggs"},
		&cli.Float64Flag{Name: flagRowTolerance, Usage: "row grouping tolerance in voxels"},
		&cli.IntFlag{Name: flagPadding, Usage: "crop margin in voxels"},
		&cli.BoolFlag{Name: flagCompress, Usage: "write .nii.gz"},
		&cli.BoolFlag{Name: flagPreviews, Usage: "write a mid-plane preview PNG per egg"},
		&cli.BoolFlag{Name: flagSlices, Usage: "write every depth plane of each egg as a JPEG"},
		&cli.BoolFlag{Name: flagNoManifest, Usage: "skip manifest.yaml"},
		&cli.BoolFlag{Name: flagSaveIntermediary, Usage: "save images of the intermediate stages"},
		&cli.StringFlag{Name: flagIntermediaryDir, Usage: "`DIR` for intermediate stage images"},
	}
}

// loadConfig reads the configuration named by --config, or the defaults, and applies the
// command line overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet(flagLogLevel) {
		cfg.Logging.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagLogDir) {
		cfg.Paths.LogDir = c.String(flagLogDir)
	}
	if c.Bool(flagQuiet) {
		cfg.Logging.Console = false
	}
	if c.IsSet(flagInput) {
		cfg.Paths.InputPath = c.String(flagInput)
	}
	if c.IsSet(flagOutput) {
		cfg.Paths.OutputDir = c.String(flagOutput)
	}
	if c.IsSet(flagSigma) {
		cfg.Parameters.Sigma = c.Float64(flagSigma)
	}
	if c.IsSet(flagExpected) {
		cfg.Parameters.ExpectedEggCount = c.Int(flagExpected)
	}
	if c.IsSet(flagRowTolerance) {
		cfg.Parameters.RowTolerance = c.Float64(flagRowTolerance)
	}
	if c.IsSet(flagPadding) {
		cfg.Parameters.Padding = c.Int(flagPadding)
	}
	if c.Bool(flagCompress) {
		cfg.Output.Compress = true
	}
	if c.Bool(flagPreviews) {
		cfg.Output.Previews = true
	}
	if c.Bool(flagSlices) {
		cfg.Output.Slices = true
	}
	if c.Bool(flagNoManifest) {
		cfg.Output.Manifest = false
	}
	if c.Bool(flagSaveIntermediary) {
		cfg.Output.SaveIntermediaryResults = true
	}
	if c.IsSet(flagIntermediaryDir) {
		cfg.Output.IntermediaryDir = c.String(flagIntermediaryDir)
	}
	return cfg, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.LogOptions())
	if err != nil {
		return models.WrapError(models.KindIO, "setup logging", err)
	}
	defer closeLog()

	return processScan(c.Context, cfg, cfg.Paths.InputPath, cfg.Paths.OutputDir, cfg.Output.IntermediaryDir, logger)
}

func batchAction(c *cli.Context) error {
	scans := c.Args().Slice()
	if len(scans) == 0 {
		return models.Errorf(models.KindValidation, "batch", "no scans given")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// input_path is unused in batch mode
	cfg.Paths.InputPath = scans[0]
	if err := cfg.Validate(); err != nil {
		return err
	}
	jobs := c.Int(flagJobs)
	if jobs < 1 {
		return models.Errorf(models.KindValidation, "batch", "--jobs must be at least 1, got %d", jobs)
	}
	logger, closeLog, err := logging.New(cfg.LogOptions())
	if err != nil {
		return models.WrapError(models.KindIO, "setup logging", err)
	}
	defer closeLog()

	seen := make(map[string]string, len(scans))
	for _, scan := range scans {
		name := scanName(scan)
		if prev, ok := seen[name]; ok {
			return models.Errorf(models.KindValidation, "batch", "%s and %s would share output directory %s", prev, scan, name)
		}
		seen[name] = scan
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(jobs)
	for _, scan := range scans {
		scan := scan
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := scanName(scan)
			return processScan(ctx, cfg, scan,
				filepath.Join(cfg.Paths.OutputDir, name),
				filepath.Join(cfg.Output.IntermediaryDir, name),
				logger.With("scan", name))
		})
	}
	if err := g.Wait(); err != nil {
		logger.Errorf("Batch stopped: %v", err)
		return err
	}
	logger.Infof("Batch of %d scans finished in %s", len(scans), time.Since(start).Round(time.Millisecond))
	return nil
}

// processScan runs the pipeline on one scan and exports the eggs.
func processScan(ctx context.Context, cfg *config.Config, input, outputDir, intermediaryDir string, logger *zap.SugaredLogger) error {
	logger.Infof("Loading volume from %s", input)
	volume, err := nifti.LoadVolume(input)
	if err != nil {
		logger.Errorf("Failed to load %s: %v", input, err)
		return err
	}

	params := cfg.PipelineParams()
	params.IntermediaryDir = intermediaryDir
	result, err := pipeline.NewPipeline(params, logger).Run(volume)
	if err != nil {
		return err
	}

	writer := export.NewWriter(outputDir, input, cfg.ExportOptions(), logger.Named("export"))
	if _, err := writer.Write(ctx, result, export.RunInfo{InputPath: input, Params: *params}); err != nil {
		return err
	}
	logger.Infof("Processing complete: %d eggs saved to %s", len(result), outputDir)
	return nil
}

func initConfigAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = "eggsplit.yaml"
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return models.WrapError(models.KindIO, "init config", err)
	}
	_, err := c.App.Writer.Write([]byte("Wrote default configuration to " + path + "\n"))
	return err
}

// scanName is the file name of scan without its NIfTI extension.
func scanName(scan string) string {
	base := filepath.Base(scan)
	lower := strings.ToLower(base)
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
