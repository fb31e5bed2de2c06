package frame

import (
	"github.com/anthonynsimon/bild/parallel"

	"github.com/teslashibe/go-daltonize/pkg/colorspace"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
)

// Default processor limits.
const (
	DefaultMaxPixels         = 4096 * 4096
	DefaultMinParallelPixels = 64 * 64
)

// Config holds processor configuration.
type Config struct {
	// MaxPixels rejects frames larger than this with a *TooLargeError.
	MaxPixels int

	// MinParallelPixels is the size below which rows are processed on the
	// calling goroutine.
	MinParallelPixels int
}

// Option is a functional option for configuring a Processor.
type Option func(*Config)

// WithMaxPixels sets the largest accepted frame area.
func WithMaxPixels(n int) Option {
	return func(c *Config) { c.MaxPixels = n }
}

// WithMinParallelPixels sets the threshold for row-parallel processing.
func WithMinParallelPixels(n int) Option {
	return func(c *Config) { c.MinParallelPixels = n }
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPixels:         DefaultMaxPixels,
		MinParallelPixels: DefaultMinParallelPixels,
	}
}

// Processor applies the correction chain to every pixel of a frame.
// It holds no mutable state and is safe for concurrent use.
type Processor struct {
	cfg Config
}

// NewProcessor creates a processor.
func NewProcessor(opts ...Option) *Processor {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Processor{cfg: cfg}
}

// Config returns the processor configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Check validates that f can be processed.
func (p *Processor) Check(f *Frame) error {
	if f.Empty() {
		return ErrEmptyFrame
	}
	if p.cfg.MaxPixels > 0 && f.Pixels() > p.cfg.MaxPixels {
		return &TooLargeError{Width: f.Width, Height: f.Height, MaxPixels: p.cfg.MaxPixels}
	}
	return nil
}

// Process returns a corrected copy of f. Pixels are independent, so rows
// are split across CPUs for anything but tiny frames.
func (p *Processor) Process(f *Frame, d deficiency.Type, s daltonize.Strength) (*Frame, error) {
	if err := p.validate(f, d); err != nil {
		return nil, err
	}
	k := daltonize.KernelFor(d)
	s = s.Clamp()

	return p.mapPixels(f, func(x colorspace.Vec3) colorspace.Vec3 {
		return k.Apply(x, s)
	}), nil
}

// Simulate returns f as a viewer with deficiency d perceives it.
func (p *Processor) Simulate(f *Frame, d deficiency.Type) (*Frame, error) {
	if err := p.validate(f, d); err != nil {
		return nil, err
	}
	k := daltonize.KernelFor(d)
	return p.mapPixels(f, k.Simulate), nil
}

func (p *Processor) validate(f *Frame, d deficiency.Type) error {
	if !d.Valid() {
		return &deficiency.UnknownError{Value: d.String()}
	}
	return p.Check(f)
}

func (p *Processor) mapPixels(f *Frame, fn func(colorspace.Vec3) colorspace.Vec3) *Frame {
	out := New(f.Width, f.Height)
	stride := f.Width * 4

	rows := func(start, end int) {
		for y := start; y < end; y++ {
			src := f.Pix[y*stride : (y+1)*stride]
			dst := out.Pix[y*stride : (y+1)*stride]
			for i := 0; i < stride; i += 4 {
				o := fn(colorspace.Vec3{
					colorspace.DecodeByte(src[i]),
					colorspace.DecodeByte(src[i+1]),
					colorspace.DecodeByte(src[i+2]),
				})
				dst[i] = colorspace.EncodeByte(o[0])
				dst[i+1] = colorspace.EncodeByte(o[1])
				dst[i+2] = colorspace.EncodeByte(o[2])
				dst[i+3] = src[i+3]
			}
		}
	}

	if f.Pixels() < p.cfg.MinParallelPixels {
		rows(0, f.Height)
	} else {
		parallel.Line(f.Height, rows)
	}
	return out
}
