// Package recolor runs the decode, correct, encode chain for one image and
// defines the failure taxonomy shared by every transport.
package recolor

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/frame"
)

// Params selects the correction applied to one image.
type Params struct {
	Deficiency deficiency.Type
	Strength   daltonize.Strength

	// Format is the output encoding. Empty keeps the input's format where
	// it can be encoded and falls back to PNG otherwise.
	Format codec.Format

	// Simulate renders the deficient view instead of correcting.
	Simulate bool
}

// Result is one encoded output image.
type Result struct {
	Data    []byte
	Format  codec.Format
	Width   int
	Height  int
	Elapsed time.Duration
}

// Still handles single-image requests. It keeps no per-request state, so
// one value may serve any number of concurrent requests.
type Still struct {
	codec  *codec.Codec
	proc   *frame.Processor
	logger *slog.Logger
}

// NewStill creates a handler. Nil arguments use defaults.
func NewStill(c *codec.Codec, p *frame.Processor, logger *slog.Logger) *Still {
	if c == nil {
		c = codec.New()
	}
	if p == nil {
		p = frame.NewProcessor()
	}
	if logger == nil {
		logger = log.L()
	}
	return &Still{codec: c, proc: p, logger: logger.With("component", "recolor")}
}

// Codec returns the codec used for decoding and encoding.
func (s *Still) Codec() *codec.Codec {
	return s.codec
}

// Processor returns the frame processor.
func (s *Still) Processor() *frame.Processor {
	return s.proc
}

// ParseParams validates textual request parameters. Strength defaults to
// full when empty; format defaults to def when empty.
func ParseParams(def codec.Format, selector, strength, format string) (Params, error) {
	d, err := deficiency.Parse(selector)
	if err != nil {
		return Params{}, &InputError{Err: err}
	}
	st, err := daltonize.ParseStrength(strength, daltonize.Full)
	if err != nil {
		return Params{}, &InputError{Err: err}
	}
	out := def
	if format != "" {
		if out, err = codec.ParseFormat(format); err != nil {
			return Params{}, &InputError{Err: err}
		}
	}
	return Params{Deficiency: d, Strength: st, Format: out}, nil
}

// HandleRequest validates textual parameters before touching the image,
// then runs Handle. Output defaults to PNG.
func (s *Still) HandleRequest(data []byte, selector, strength, format string) (*Result, error) {
	p, err := ParseParams(codec.FormatPNG, selector, strength, format)
	if err != nil {
		return nil, err
	}
	return s.Handle(data, p)
}

// Handle decodes data, applies p and encodes the result.
func (s *Still) Handle(data []byte, p Params) (*Result, error) {
	if !p.Deficiency.Valid() {
		return nil, &InputError{Err: &deficiency.UnknownError{Value: p.Deficiency.String()}}
	}
	if _, err := daltonize.NewStrength(float64(p.Strength)); err != nil {
		return nil, &InputError{Err: err}
	}

	start := time.Now()
	in, inFormat, err := s.codec.Decode(data)
	if err != nil {
		return nil, Classify(err)
	}

	out, err := s.Apply(in, p)
	if err != nil {
		return nil, err
	}

	format := p.Format
	if format == "" {
		format = inFormat
	}
	encoded, format, err := s.codec.Encode(out, format)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Data:    encoded,
		Format:  format,
		Width:   out.Width,
		Height:  out.Height,
		Elapsed: time.Since(start),
	}
	s.logger.Debug("recolored image",
		"deficiency", p.Deficiency,
		"strength", float64(p.Strength),
		"size", [2]int{res.Width, res.Height},
		"format", res.Format,
		"elapsed", res.Elapsed)
	return res, nil
}

// Apply runs the processor on an already decoded frame.
func (s *Still) Apply(f *frame.Frame, p Params) (*frame.Frame, error) {
	var (
		out *frame.Frame
		err error
	)
	if p.Simulate {
		out, err = s.proc.Simulate(f, p.Deficiency)
	} else {
		out, err = s.proc.Process(f, p.Deficiency, p.Strength)
	}
	return out, Classify(err)
}
