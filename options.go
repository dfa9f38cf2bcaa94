package seisgo

import (
	"log/slog"
	"strconv"

	"github.com/seisgo/seisgo/internal/stencil"
	"github.com/seisgo/seisgo/wave"
)

// Mode identifies the modeling strategy an evaluator uses for the gradient.
// It is derived from the options, not set directly.
type Mode int

const (
	// Standard retains the (possibly subsampled) forward wavefield in
	// memory and cross-correlates it with the adjoint field.
	Standard Mode = iota
	// Checkpointed stores compressed wavefield snapshots and replays
	// segments during the adjoint pass.
	Checkpointed
	// Frequency retains on-the-fly DFT coefficients instead of time
	// slices and assembles the gradient in the frequency domain.
	Frequency
	// Restricted is Standard on a model cropped to the receiver area of
	// each shot, with the gradient extended back onto the full grid.
	Restricted
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Checkpointed:
		return "checkpointed"
	case Frequency:
		return "frequency"
	case Restricted:
		return "restricted"
	default:
		return "unknown"
	}
}

type options struct {
	engine  wave.Engine
	logger  *Logger
	metrics MetricsCollector

	spaceOrder int
	f0         float64
	dtComp     float64
	sumPadding bool

	freeSurface bool
	imaging     wave.Imaging

	subsampling int

	checkpointing    bool
	numCheckpoints   int
	checkpointMemory int64

	frequencies [][]float64
	sharedFreqs []float64
	dftSub      int

	limitToReceiverArea bool
	bufferSize          float64
}

// Option configures evaluator behavior.
type Option func(*options)

// WithEngine sets the modeling engine. If nil is passed, the reference
// acoustic engine is used.
func WithEngine(e wave.Engine) Option {
	return func(o *options) {
		if e == nil {
			e = wave.NewAcoustic()
		}
		o.engine = e
	}
}

// WithSpaceOrder sets the finite-difference spatial order (2, 4 or 8).
// Default is 8.
func WithSpaceOrder(order int) Option {
	return func(o *options) {
		o.spaceOrder = order
	}
}

// WithF0 sets the peak frequency in kHz used for anti-alias filtering of
// subsampled wavefields and for default wavelet generation. Default is 0.015
// (15 Hz).
func WithF0(f0 float64) Option {
	return func(o *options) {
		o.f0 = f0
	}
}

// WithDtComp forces the computational time step in ms, overriding the CFL
// step when smaller. Values above the critical step are rejected at
// evaluation time.
func WithDtComp(dt float64) Option {
	return func(o *options) {
		o.dtComp = dt
	}
}

// WithSumPadding accumulates gradient energy from the absorbing layer into
// the nearest physical cell instead of discarding it. This preserves the
// adjoint-test identity at the evaluator level.
func WithSumPadding(sum bool) Option {
	return func(o *options) {
		o.sumPadding = sum
	}
}

// WithFreeSurface enables a reflecting free surface at the top of the model
// (no absorbing pad before the depth axis).
func WithFreeSurface(fs bool) Option {
	return func(o *options) {
		o.freeSurface = fs
	}
}

// WithImagingCondition selects the imaging condition used by the gradient
// and Born operators. Default is wave.CrossCorrelation.
func WithImagingCondition(ic wave.Imaging) Option {
	return func(o *options) {
		o.imaging = ic
	}
}

// WithSubsamplingFactor retains only every factor-th time slice of the
// forward wavefield, cutting memory by the same factor. Incompatible with
// checkpointing and frequency-domain gradients.
func WithSubsamplingFactor(factor int) Option {
	return func(o *options) {
		o.subsampling = factor
	}
}

// WithOptimalCheckpointing trades recomputation for memory: the forward
// wavefield is stored as compressed snapshots and replayed during the
// adjoint pass. Incompatible with subsampling and frequency-domain
// gradients.
func WithOptimalCheckpointing(enable bool) Option {
	return func(o *options) {
		o.checkpointing = enable
	}
}

// WithNumCheckpoints sets the snapshot count for checkpointed gradients.
// Zero lets the engine choose.
func WithNumCheckpoints(n int) Option {
	return func(o *options) {
		o.numCheckpoints = n
	}
}

// WithCheckpointMemoryBudget caps the memory, in bytes, spent on wavefield
// snapshots. The snapshot count is reduced to fit.
func WithCheckpointMemoryBudget(bytes int64) Option {
	return func(o *options) {
		o.checkpointMemory = bytes
	}
}

// WithFrequencies enables frequency-domain gradients with a per-source list
// of frequencies in kHz. freqs[i] applies to source i of the data container;
// the outer length must match its total source count at evaluation time.
func WithFrequencies(freqs [][]float64) Option {
	return func(o *options) {
		o.frequencies = freqs
		o.sharedFreqs = nil
	}
}

// WithSharedFrequencies enables frequency-domain gradients with one list of
// frequencies in kHz applied to every source.
func WithSharedFrequencies(freqs []float64) Option {
	return func(o *options) {
		o.sharedFreqs = freqs
		o.frequencies = nil
	}
}

// WithDFTSubsamplingFactor accumulates the on-the-fly DFT only every
// factor-th time step. Only meaningful with frequency-domain gradients.
func WithDFTSubsamplingFactor(factor int) Option {
	return func(o *options) {
		o.dftSub = factor
	}
}

// WithLimitModelToReceiverArea crops the model, per batch, to the bounding
// box of the batch's source and receiver positions plus buffer meters on
// each side. The gradient is extended back onto the full grid with zeros
// outside the crop. 3-D models only.
func WithLimitModelToReceiverArea(buffer float64) Option {
	return func(o *options) {
		o.limitToReceiverArea = true
		o.bufferSize = buffer
	}
}

// WithLogger configures structured logging for evaluations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// evaluations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector(mc)
	}
}

func (o *options) metricsCollector(mc MetricsCollector) {
	if mc == nil {
		mc = NoopMetricsCollector{}
	}
	o.metrics = mc
}

func applyOptions(optFns []Option) options {
	o := options{
		engine:     wave.NewAcoustic(),
		logger:     NoopLogger(),
		metrics:    NoopMetricsCollector{},
		spaceOrder: 8,
		f0:         0.015,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// mode derives the modeling strategy from the configured options.
func (o *options) mode() Mode {
	switch {
	case o.checkpointing:
		return Checkpointed
	case len(o.frequencies) > 0 || len(o.sharedFreqs) > 0:
		return Frequency
	case o.limitToReceiverArea:
		return Restricted
	default:
		return Standard
	}
}

// validate rejects inconsistent option combinations once, at construction.
func (o *options) validate() error {
	if !stencil.Supported(o.spaceOrder) {
		return &ConfigError{Field: "SpaceOrder", Reason: "must be 2, 4 or 8"}
	}
	if o.f0 <= 0 {
		return &ConfigError{Field: "F0", Reason: "peak frequency must be positive"}
	}
	if o.dtComp < 0 {
		return &ConfigError{Field: "DtComp", Reason: "time step must be positive when set"}
	}
	if o.subsampling < 0 {
		return &ConfigError{Field: "SubsamplingFactor", Reason: "must be at least 1"}
	}
	if o.dftSub < 0 {
		return &ConfigError{Field: "DFTSubsamplingFactor", Reason: "must be at least 1"}
	}
	if o.checkpointing && o.subsampling > 1 {
		return &ConfigError{Field: "OptimalCheckpointing", Reason: "incompatible with wavefield subsampling"}
	}
	freq := len(o.frequencies) > 0 || len(o.sharedFreqs) > 0
	if o.checkpointing && freq {
		return &ConfigError{Field: "OptimalCheckpointing", Reason: "incompatible with frequency-domain gradients"}
	}
	if freq && o.subsampling > 1 {
		return &ConfigError{Field: "SubsamplingFactor", Reason: "incompatible with frequency-domain gradients"}
	}
	if !freq && o.dftSub > 1 {
		return &ConfigError{Field: "DFTSubsamplingFactor", Reason: "requires frequency-domain gradients"}
	}
	if o.limitToReceiverArea && (o.checkpointing || freq) {
		return &ConfigError{Field: "LimitModelToReceiverArea", Reason: "incompatible with checkpointing and frequency-domain gradients"}
	}
	for i, fs := range o.frequencies {
		if len(fs) == 0 {
			return &ConfigError{Field: "Frequencies", Reason: "empty frequency list for source " + strconv.Itoa(i)}
		}
		for _, f := range fs {
			if f <= 0 {
				return &ConfigError{Field: "Frequencies", Reason: "frequencies must be positive"}
			}
		}
	}
	for _, f := range o.sharedFreqs {
		if f <= 0 {
			return &ConfigError{Field: "Frequencies", Reason: "frequencies must be positive"}
		}
	}
	if o.limitToReceiverArea && o.bufferSize < 0 {
		return &ConfigError{Field: "BufferSize", Reason: "buffer must be non-negative"}
	}
	if o.checkpointMemory < 0 {
		return &ConfigError{Field: "CheckpointMemoryBudget", Reason: "budget must be non-negative"}
	}
	return nil
}
