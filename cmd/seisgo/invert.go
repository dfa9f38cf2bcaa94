package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/seisgo/seisgo"
	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/optim"
	"github.com/seisgo/seisgo/shot"
	"github.com/seisgo/seisgo/wave"
	"gonum.org/v1/gonum/mat"
)

// Config is the YAML experiment description consumed by the invert command.
type Config struct {
	Grid struct {
		Shape   []int     `mapstructure:"shape"`
		Spacing []float64 `mapstructure:"spacing"`
		Origin  []float64 `mapstructure:"origin"`
		Nb      int       `mapstructure:"nb"`
	} `mapstructure:"grid"`

	Velocity struct {
		Water      float64 `mapstructure:"water"`       // km/s
		Rock       float64 `mapstructure:"rock"`        // km/s, true basement
		Start      float64 `mapstructure:"start"`       // km/s, initial guess below water
		WaterDepth int     `mapstructure:"water_depth"` // grid points, fixed during inversion
		VMin       float64 `mapstructure:"vmin"`
		VMax       float64 `mapstructure:"vmax"`
	} `mapstructure:"velocity"`

	Acquisition struct {
		Sources       int     `mapstructure:"sources"`
		Receivers     int     `mapstructure:"receivers"`
		T             float64 `mapstructure:"t"`  // ms
		Dt            float64 `mapstructure:"dt"` // ms
		F0            float64 `mapstructure:"f0"` // kHz
		SourceDepth   float64 `mapstructure:"source_depth"`   // m
		ReceiverDepth float64 `mapstructure:"receiver_depth"` // m
	} `mapstructure:"acquisition"`

	Modeling struct {
		SpaceOrder        int       `mapstructure:"space_order"`
		SumPadding        bool      `mapstructure:"sum_padding"`
		FreeSurface       bool      `mapstructure:"free_surface"`
		InverseScattering bool      `mapstructure:"inverse_scattering"`
		Checkpointing     bool      `mapstructure:"checkpointing"`
		NumCheckpoints    int       `mapstructure:"num_checkpoints"`
		Frequencies       []float64 `mapstructure:"frequencies"` // kHz, shared across sources
		DFTSubsampling    int       `mapstructure:"dft_subsampling"`
		Subsampling       int       `mapstructure:"subsampling"`
	} `mapstructure:"modeling"`

	Optimizer struct {
		MaxIter   int     `mapstructure:"max_iterations"`
		BatchSize int     `mapstructure:"batch_size"`
		Memory    int     `mapstructure:"memory"`
		GradScale float64 `mapstructure:"grad_scale"`
		Seed      int64   `mapstructure:"seed"`
	} `mapstructure:"optimizer"`

	Output struct {
		Trace string `mapstructure:"trace"`
	} `mapstructure:"output"`
}

var configPath string

var invertCmd = &cobra.Command{
	Use:   "invert",
	Short: "Run a synthetic two-layer FWI experiment",
	Long: `invert builds a two-layer model from the configuration, synthesizes
observed data with the reference engine, and inverts for the basement
velocity with the stochastic SPG optimizer. The objective trace is written
as YAML.`,
	RunE: runInvert,
}

func init() {
	invertCmd.Flags().StringVarP(&configPath, "config", "c", "invert.yaml", "experiment configuration file")
	rootCmd.AddCommand(invertCmd)
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	// NITER overrides the configured iteration cap.
	if s := os.Getenv("NITER"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return cfg, fmt.Errorf("NITER=%q is not an integer: %w", s, err)
		}
		cfg.Optimizer.MaxIter = n
	}
	return cfg, nil
}

func runInvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := seisgo.NewTextLogger(slog.LevelInfo)

	trueModel, startModel, err := buildModels(cfg)
	if err != nil {
		return err
	}
	srcRecords, recGeom, err := buildAcquisition(cfg)
	if err != nil {
		return err
	}

	eval, err := buildEvaluator(cfg, logger)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "synthesizing observed data",
		"sources", cfg.Acquisition.Sources, "mode", eval.Mode().String())
	observed, err := eval.Predict(ctx, trueModel, srcRecords, recGeom)
	if err != nil {
		return err
	}

	lower, upper := bounds(cfg, startModel)
	x0 := append([]float64(nil), startModel.Slowness()...)

	objective := func(ctx context.Context, x []float64, batch []int) (float64, []float64, error) {
		if err := startModel.SetSlowness(x); err != nil {
			return 0, nil, err
		}
		return eval.Evaluate(ctx, startModel, srcRecords, observed, batch)
	}

	result, err := optim.SPG(ctx, x0, lower, upper, objective, optim.Options{
		MaxIter:    cfg.Optimizer.MaxIter,
		Memory:     cfg.Optimizer.Memory,
		NumSources: cfg.Acquisition.Sources,
		BatchSize:  cfg.Optimizer.BatchSize,
		GradScale:  cfg.Optimizer.GradScale,
		Rand:       rand.New(rand.NewSource(cfg.Optimizer.Seed)),
		Logf: func(format string, args ...any) {
			logger.Info(fmt.Sprintf(format, args...))
		},
	})
	if result != nil && cfg.Output.Trace != "" {
		if werr := writeTrace(cfg.Output.Trace, result); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "inversion finished",
		"status", result.Status.String(),
		"iterations", result.Iters,
		"evaluations", result.Evals,
	)
	return nil
}

// buildModels constructs the true two-layer model and the starting model
// with the basement replaced by the configured start velocity.
func buildModels(cfg Config) (trueM, startM *model.Model, err error) {
	shape := cfg.Grid.Shape
	if len(shape) != 2 {
		return nil, nil, fmt.Errorf("invert: grid shape must have 2 axes, got %d", len(shape))
	}
	nx, nz := shape[0], shape[1]
	wd := cfg.Velocity.WaterDepth

	slow := func(v float64) float64 { return 1 / (v * v) }
	mTrue := make([]float64, nx*nz)
	mStart := make([]float64, nx*nz)
	for ix := 0; ix < nx; ix++ {
		for iz := 0; iz < nz; iz++ {
			i := ix*nz + iz
			if iz < wd {
				mTrue[i] = slow(cfg.Velocity.Water)
				mStart[i] = slow(cfg.Velocity.Water)
			} else {
				mTrue[i] = slow(cfg.Velocity.Rock)
				mStart[i] = slow(cfg.Velocity.Start)
			}
		}
	}
	trueM, err = model.New(shape, cfg.Grid.Spacing, cfg.Grid.Origin, cfg.Grid.Nb, mTrue)
	if err != nil {
		return nil, nil, err
	}
	startM, err = model.New(shape, cfg.Grid.Spacing, cfg.Grid.Origin, cfg.Grid.Nb, mStart)
	if err != nil {
		return nil, nil, err
	}
	return trueM, startM, nil
}

// buildAcquisition lays sources and a receiver line across the top of the
// model and builds the source records with Ricker wavelets.
func buildAcquisition(cfg Config) (*shot.Records, *geometry.Container, error) {
	a := cfg.Acquisition
	nx := cfg.Grid.Shape[0]
	dx := cfg.Grid.Spacing[0]
	ox := cfg.Grid.Origin[0]
	width := float64(nx-1) * dx

	ns := a.Sources
	srcPos := make([]geometry.Points, ns)
	recPos := make([]geometry.Points, ns)
	t := make([]float64, ns)
	dt := make([]float64, ns)
	for s := 0; s < ns; s++ {
		x := ox + width*(float64(s)+0.5)/float64(ns)
		srcPos[s] = geometry.Points{{x, a.SourceDepth}}
		line := make(geometry.Points, a.Receivers)
		for r := 0; r < a.Receivers; r++ {
			rx := ox + width*float64(r)/float64(a.Receivers-1)
			line[r] = []float64{rx, a.ReceiverDepth}
		}
		recPos[s] = line
		t[s] = a.T
		dt[s] = a.Dt
	}

	srcGeom, err := geometry.New(srcPos, t, dt)
	if err != nil {
		return nil, nil, err
	}
	recGeom, err := geometry.New(recPos, t, dt)
	if err != nil {
		return nil, nil, err
	}

	nt := srcGeom.Nt(0)
	wavelet := wave.Ricker(a.F0, a.Dt, nt)
	traces := make([]*mat.Dense, ns)
	for s := range traces {
		traces[s] = mat.NewDense(nt, 1, append([]float64(nil), wavelet...))
	}
	records, err := shot.New(geometry.NewMaterialized(srcGeom), traces)
	if err != nil {
		return nil, nil, err
	}
	return records, geometry.NewMaterialized(recGeom), nil
}

func buildEvaluator(cfg Config, logger *seisgo.Logger) (*seisgo.Evaluator, error) {
	m := cfg.Modeling
	opts := []seisgo.Option{
		seisgo.WithLogger(logger),
		seisgo.WithSumPadding(m.SumPadding),
		seisgo.WithFreeSurface(m.FreeSurface),
		seisgo.WithF0(cfg.Acquisition.F0),
	}
	if m.SpaceOrder > 0 {
		opts = append(opts, seisgo.WithSpaceOrder(m.SpaceOrder))
	}
	if m.InverseScattering {
		opts = append(opts, seisgo.WithImagingCondition(wave.InverseScattering))
	}
	if m.Checkpointing {
		opts = append(opts, seisgo.WithOptimalCheckpointing(true),
			seisgo.WithNumCheckpoints(m.NumCheckpoints))
	}
	if len(m.Frequencies) > 0 {
		opts = append(opts, seisgo.WithSharedFrequencies(m.Frequencies))
		if m.DFTSubsampling > 1 {
			opts = append(opts, seisgo.WithDFTSubsamplingFactor(m.DFTSubsampling))
		}
	}
	if m.Subsampling > 1 {
		opts = append(opts, seisgo.WithSubsamplingFactor(m.Subsampling))
	}
	return seisgo.NewEvaluator(opts...)
}

// bounds builds the slowness box constraints, pinning the water column to
// its starting value.
func bounds(cfg Config, start *model.Model) (lower, upper []float64) {
	slow := func(v float64) float64 { return 1 / (v * v) }
	lo, hi := slow(cfg.Velocity.VMax), slow(cfg.Velocity.VMin)

	shape := start.Shape()
	nx, nz := shape[0], shape[1]
	wd := cfg.Velocity.WaterDepth
	m0 := start.Slowness()

	lower = make([]float64, len(m0))
	upper = make([]float64, len(m0))
	for ix := 0; ix < nx; ix++ {
		for iz := 0; iz < nz; iz++ {
			i := ix*nz + iz
			if iz < wd {
				lower[i] = m0[i]
				upper[i] = m0[i]
			} else {
				lower[i] = lo
				upper[i] = hi
			}
		}
	}
	return lower, upper
}

type traceOutput struct {
	Status      string    `yaml:"status"`
	Iterations  int       `yaml:"iterations"`
	Evaluations int       `yaml:"evaluations"`
	Trace       []float64 `yaml:"trace"`
}

func writeTrace(path string, res *optim.Result) error {
	out, err := yaml.Marshal(traceOutput{
		Status:      res.Status.String(),
		Iterations:  res.Iters,
		Evaluations: res.Evals,
		Trace:       res.Trace,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
