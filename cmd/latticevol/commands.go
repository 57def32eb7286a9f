package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/unixpickle/essentials"

	"latticevol/pkg/interpolation"
	"latticevol/pkg/pipeline"
	"latticevol/pkg/stats"
	"latticevol/pkg/visualization"
	"latticevol/pkg/vtk"
)

var (
	makeSize   int
	makeFields int

	splitPattern string

	frames int

	resampleDims string

	surfaceLow, surfaceHigh bool
	useGeometry, grouped    bool

	sliceAxis  string
	sliceDir   string
	sliceMovie string
	sliceFPS   int

	runMake     int
	runFields   int
	runSplit    string
	runFrames   int
	runResample string
)

func init() {
	makeCmd.Flags().IntVar(&makeSize, "size", 10, "number of samples along each axis")
	makeCmd.Flags().IntVar(&makeFields, "fields", 1, "number of fields (named slice0, slice1, ...)")

	splitCmd.Flags().StringVar(&splitPattern, "pattern", "slice", "regular expression matched against the start of each field name")

	interpolateCmd.Flags().IntVar(&frames, "frames", 1, "number of frames between consecutive files")

	resampleCmd.Flags().StringVar(&resampleDims, "dims", "", "target grid, e.g. 20x20x20")
	essentials.Must(resampleCmd.MarkFlagRequired("dims"))

	for _, c := range []*cobra.Command{surfaceCmd, runCmd} {
		c.Flags().BoolVar(&surfaceLow, "low", true, "extract the lower suggested level")
		c.Flags().BoolVar(&surfaceHigh, "high", true, "extract the upper suggested level")
		c.Flags().BoolVar(&useGeometry, "geometry", false, "place vertices using the file's origin and spacing")
		c.Flags().BoolVar(&grouped, "grouped", false, "write STL files through model3d")
	}

	slicesCmd.Flags().StringVar(&sliceAxis, "axis", "z", "axis to slice along (x, y or z)")
	slicesCmd.Flags().StringVar(&sliceDir, "dir", "slices", "directory for the JPEG slices")
	slicesCmd.Flags().StringVar(&sliceMovie, "movie", "", "also write the slices as an MJPEG AVI file")
	slicesCmd.Flags().IntVar(&sliceFPS, "fps", 10, "frame rate of the movie")

	runCmd.Flags().IntVar(&runMake, "make", 0, "create the first input as a point charge volume of this size")
	runCmd.Flags().IntVar(&runFields, "fields", 1, "number of fields when --make is set")
	runCmd.Flags().StringVar(&runSplit, "split", "", "split the single input into the fields matching this pattern")
	runCmd.Flags().IntVar(&runFrames, "frames", 0, "number of frames between consecutive files (default from config)")
	runCmd.Flags().StringVar(&runResample, "resample", "", "target grid (default from config)")
}

// surfaceOptions applies the surface flags that were set on top of the
// configuration.
func surfaceOptions(flags *pflag.FlagSet, p *pipeline.Params) {
	if flags.Changed("low") {
		p.Surface.WriteLow = surfaceLow
	}
	if flags.Changed("high") {
		p.Surface.WriteHigh = surfaceHigh
	}
	if flags.Changed("geometry") {
		p.Surface.UseGeometry = useGeometry
	}
	if flags.Changed("grouped") {
		p.Surface.Grouped = grouped
	}
	p.Surfaces = p.Surface.WriteLow || p.Surface.WriteHigh
}

var makeCmd = &cobra.Command{
	Use:   "make [file]",
	Short: "Write a synthetic point charge volume.",
	Long: "Write a size³ volume holding the field 1/sqrt(0.001 + r²) around the " +
		"grid center, repeated in each of the requested fields.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := pipeline.MakeFile(args[0], makeSize, makeFields); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"file": args[0], "size": makeSize, "fields": makeFields}).Info("made volume")
		return nil
	},
}

var splitCmd = &cobra.Command{
	Use:   "split [file]",
	Short: "Split a multi-field file into one file per matching field.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := pipeline.Split(args[0], splitPattern, cfg.Output.Dir)
		for _, f := range files {
			fmt.Println(f)
		}
		return err
	},
}

var interpolateCmd = &cobra.Command{
	Use:   "interpolate [files...]",
	Short: "Interpolate frames between consecutive key frames.",
	Long: "Sort the input files and write --frames linearly interpolated " +
		"files between each consecutive pair. Key frame names must end in 00.vtk.",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := pipeline.Expand(args)
		if err != nil {
			return err
		}
		n := frames
		if !cmd.Flags().Changed("frames") && cfg.Interpolation.Frames > 0 {
			n = cfg.Interpolation.Frames
		}
		out, err := newRunner(args, nil).Interpolate(files, n)
		for _, f := range out {
			fmt.Println(f)
		}
		return err
	},
}

var resampleCmd = &cobra.Command{
	Use:   "resample [files...]",
	Short: "Resample volumes onto a new grid with tricubic interpolation.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dims, err := interpolation.ParseDims(resampleDims)
		if err != nil {
			return err
		}
		files, err := pipeline.Expand(args)
		if err != nil {
			return err
		}
		out, err := newRunner(args, nil).ResampleFiles(files, dims)
		for _, f := range out {
			fmt.Println(f)
		}
		return err
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Print the range and suggested isosurface levels of each file.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := pipeline.Expand(args)
		if err != nil {
			return err
		}
		for _, f := range files {
			res, err := stats.AnalyzeFileTarget(f, cfg.Processing.TargetSamples)
			if err != nil {
				log.WithField("file", f).WithError(err).Warn("skipping file")
				continue
			}
			mean, std := res.Summary()
			fmt.Printf("%s: min=%g max=%g low=%g high=%g mean=%g std=%g samples=%d\n",
				f, res.Minimum, res.Maximum, res.IsoLow, res.IsoHigh, mean, std, len(res.Samples))
		}
		return nil
	},
}

var surfaceCmd = &cobra.Command{
	Use:   "surface [files...]",
	Short: "Extract isosurfaces to STL.",
	Long: "Pick two isosurface levels from the middle file of the sorted inputs " +
		"and write <name>.low.stl and <name>.high.stl for every input.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := pipeline.Expand(args)
		if err != nil {
			return err
		}
		r := newRunner(args, func(p *pipeline.Params) { surfaceOptions(cmd.Flags(), p) })
		surfaces, err := r.ExtractSurfaces(files)
		for _, s := range surfaces {
			if s.Path != "" {
				fmt.Printf("%s (%d triangles)\n", s.Path, s.Triangles)
			}
		}
		return err
	},
}

var slicesCmd = &cobra.Command{
	Use:   "slices [file]",
	Short: "Write every slice of a volume along one axis as a JPEG image.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := vtk.ReadFile(args[0])
		if err != nil {
			return err
		}
		dir := sliceDir
		if cfg.Output.Dir != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Output.Dir, dir)
		}
		axis := strings.ToLower(sliceAxis)
		viewer := visualization.NewViewer(v)
		if err := viewer.SaveSliceSequence(axis, dir); err != nil {
			return errors.Wrap(err, args[0])
		}
		log.WithFields(logrus.Fields{"file": args[0], "axis": axis, "dir": dir}).Info("saved slices")

		if sliceMovie != "" {
			if err := viewer.SaveSliceMovie(axis, sliceMovie, sliceFPS); err != nil {
				return errors.Wrap(err, sliceMovie)
			}
			log.WithFields(logrus.Fields{"file": args[0], "movie": sliceMovie}).Info("saved movie")
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [inputs...]",
	Short: "Run the whole pipeline.",
	Long: "Make or collect the inputs, then split, interpolate, resample and " +
		"extract isosurfaces as configured. Files that fail are logged and skipped.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := pipeline.ParamsFromConfig(cfg)
		p.Inputs = args
		p.MakeSize = runMake
		p.MakeFields = runFields
		p.SplitPattern = runSplit
		if cmd.Flags().Changed("frames") {
			p.Frames = runFrames
		}
		if cmd.Flags().Changed("resample") {
			p.Resample = runResample
		}
		surfaceOptions(cmd.Flags(), p)
		p.Log = log

		r := pipeline.NewRunner(p)
		if err := r.Process(); err != nil {
			return err
		}
		for _, f := range r.Files() {
			fmt.Println(f)
		}
		for _, s := range r.Surfaces() {
			if s.Path != "" {
				fmt.Printf("%s (%d triangles)\n", s.Path, s.Triangles)
			}
		}
		return nil
	},
}
