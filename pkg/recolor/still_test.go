package recolor

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/frame"
)

func redPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	f := frame.New(w, h)
	f.Fill(255, 0, 0)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, f.Image()))
	return buf.Bytes()
}

func TestHandleRequest(t *testing.T) {
	s := NewStill(nil, nil, nil)

	res, err := s.HandleRequest(redPNG(t, 6, 4), "deuteranopia", "1.0", "")
	require.NoError(t, err)
	assert.Equal(t, codec.FormatPNG, res.Format)
	assert.Equal(t, 6, res.Width)
	assert.Equal(t, 4, res.Height)

	out, format, err := s.Codec().Decode(res.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.FormatPNG, format)
	r, g, b, _ := out.At(0, 0)
	assert.NotEqual(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
}

func TestHandleRequestJPEGOutput(t *testing.T) {
	res, err := NewStill(nil, nil, nil).HandleRequest(redPNG(t, 8, 8), "protan", "", "jpeg")
	require.NoError(t, err)
	assert.Equal(t, codec.FormatJPEG, res.Format)
	sniffed, err := codec.Sniff(res.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.FormatJPEG, sniffed)
}

func TestHandleZeroStrengthIsPassthrough(t *testing.T) {
	data := redPNG(t, 3, 3)
	res, err := NewStill(nil, nil, nil).HandleRequest(data, "tritanopia", "0", "png")
	require.NoError(t, err)
	out, _, err := codec.New().Decode(res.Data)
	require.NoError(t, err)
	r, g, b, a := out.At(1, 1)
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, [4]uint8{r, g, b, a})
}

func TestHandleRequestErrors(t *testing.T) {
	s := NewStill(codec.New(codec.WithMaxPixels(64)), nil, nil)
	img := redPNG(t, 4, 4)

	tests := []struct {
		name     string
		data     []byte
		selector string
		strength string
		format   string
		kind     Kind
	}{
		{"strength above one", img, "deuteranopia", "1.5", "", KindInput},
		{"negative strength", img, "deuteranopia", "-0.1", "", KindInput},
		{"strength not a number", img, "deuteranopia", "lots", "", KindInput},
		{"unknown deficiency", img, "monochromacy", "1", "", KindInput},
		{"unknown format", img, "protan", "1", "tiff", KindInput},
		{"garbage image", []byte("hello"), "protan", "1", "", KindInput},
		{"empty image", nil, "protan", "1", "", KindInput},
		{"too many pixels", redPNG(t, 9, 9), "protan", "1", "", KindResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.HandleRequest(tt.data, tt.selector, tt.strength, tt.format)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestOutOfRangeStrengthSkipsDecode(t *testing.T) {
	// An undecodable body still reports the strength problem first.
	_, err := NewStill(nil, nil, nil).HandleRequest([]byte("not an image"), "deuteranopia", "1.5", "")
	var se *daltonize.StrengthError
	require.True(t, errors.As(err, &se))
	var ie *InputError
	assert.True(t, errors.As(err, &ie))
}

func TestHandleRejectsInvalidParams(t *testing.T) {
	s := NewStill(nil, nil, nil)
	_, err := s.Handle(redPNG(t, 2, 2), Params{Deficiency: deficiency.Type(9), Strength: 1})
	assert.Equal(t, KindInput, KindOf(err))

	_, err = s.Handle(redPNG(t, 2, 2), Params{Deficiency: deficiency.Deutan, Strength: 2})
	assert.Equal(t, KindInput, KindOf(err))
}

func TestSimulateParam(t *testing.T) {
	s := NewStill(nil, nil, nil)
	res, err := s.Handle(redPNG(t, 2, 2), Params{Deficiency: deficiency.Protan, Simulate: true})
	require.NoError(t, err)
	assert.Equal(t, codec.FormatPNG, res.Format)
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	s := NewStill(nil, nil, nil)
	data := redPNG(t, 32, 32)

	want := make(map[deficiency.Type][]byte)
	for _, d := range deficiency.All() {
		res, err := s.Handle(data, Params{Deficiency: d, Strength: 0.8, Format: codec.FormatPNG})
		require.NoError(t, err)
		want[d] = res.Data
	}

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		d := deficiency.All()[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Handle(data, Params{Deficiency: d, Strength: 0.8, Format: codec.FormatPNG})
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(res.Data, want[d]) {
				errs <- fmt.Errorf("%s: output differs", d)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"empty frame", frame.ErrEmptyFrame, KindInput},
		{"too large", &frame.TooLargeError{Width: 1, Height: 1}, KindResource},
		{"input bytes", fmt.Errorf("wrap: %w", codec.ErrInputTooLarge), KindResource},
		{"unknown deficiency", &deficiency.UnknownError{Value: "x"}, KindInput},
		{"data url", &codec.DataURLError{Reason: "x"}, KindInput},
		{"stale", ErrStaleSession, KindSession},
		{"closed session", &SessionStateError{SessionID: "a", State: "closed"}, KindSession},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}

	assert.Nil(t, Classify(nil))
	assert.ErrorIs(t, &SessionStateError{State: "closed"}, ErrStaleSession)
	assert.NotErrorIs(t, &SessionStateError{State: "connected"}, ErrStaleSession)
}
