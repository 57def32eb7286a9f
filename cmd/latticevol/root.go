package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"latticevol/pkg/config"
	"latticevol/pkg/pipeline"
)

var (
	configFile string
	verbose    bool
	numCores   int
	outputDir  string

	// cfg holds the configuration after flags are applied.
	cfg *config.Config

	log = logrus.StandardLogger()
)

// RootCmd is the main command.
var RootCmd = &cobra.Command{
	Use:   "latticevol",
	Short: "Tools for VTK structured-points volumes.",
	Long: `latticevol reads and writes legacy VTK structured-points files with
big-endian float fields. It splits multi-field files, interpolates frames
between key frames, resamples grids with tricubic interpolation and extracts
isosurfaces to STL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return Startup(cmd)
	},
}

// Startup loads the configuration file, applies the persistent flags on top
// of it and configures logging.
func Startup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Output.Verbose = verbose
	}
	if flags.Changed("cores") {
		cfg.Processing.NumCores = numCores
	}
	if flags.Changed("out") {
		cfg.Output.Dir = outputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return err
		}
	}

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Output.Verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	log.WithField("config", configFile).Debug("configuration loaded")
	return nil
}

// newRunner builds a pipeline runner from the loaded configuration with
// every stage switched off; commands enable the ones they need.
func newRunner(inputs []string, configure func(p *pipeline.Params)) *pipeline.Runner {
	p := pipeline.ParamsFromConfig(cfg)
	p.Inputs = inputs
	p.Frames = 0
	p.Resample = ""
	p.Surfaces = false
	p.Log = log
	if configure != nil {
		configure(p)
	}
	return pipeline.NewRunner(p)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file location (YAML)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log per-file progress")
	RootCmd.PersistentFlags().IntVar(&numCores, "cores", 0, "number of CPU cores to use (default from config: all available)")
	RootCmd.PersistentFlags().StringVarP(&outputDir, "out", "o", "", "directory for derived files (default: next to the input)")

	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(makeCmd)
	RootCmd.AddCommand(splitCmd)
	RootCmd.AddCommand(interpolateCmd)
	RootCmd.AddCommand(resampleCmd)
	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(surfaceCmd)
	RootCmd.AddCommand(slicesCmd)
	RootCmd.AddCommand(runCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [file]",
	Short: "Write the default configuration to a file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.CreateDefaultConfigFile(args[0]); err != nil {
			return err
		}
		log.WithField("file", args[0]).Info("wrote default configuration")
		return nil
	},
}
