package server

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
)

// handleCorrect recolors one image. The image is the multipart field
// "image" or the raw request body. The deficiency comes from the path or
// the "deficiency" query parameter.
func (s *Server) handleCorrect(c *fiber.Ctx) error {
	start := time.Now()

	selector := c.Params("deficiency")
	if selector == "" {
		selector = c.Query("deficiency")
	}
	p, err := recolor.ParseParams(codec.FormatPNG, selector, c.Query("strength"), c.Query("format"))
	if err != nil {
		s.observeStill(p, start, err)
		return err
	}
	p.Simulate = c.QueryBool("simulate", false)

	data, err := s.requestImage(c)
	if err != nil {
		s.observeStill(p, start, err)
		return err
	}

	res, err := s.still.Handle(data, p)
	s.observeStill(p, start, err)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, res.Format.MIME())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="recolored.%s"`, res.Format.Extension()))
	c.Set("X-Image-Width", strconv.Itoa(res.Width))
	c.Set("X-Image-Height", strconv.Itoa(res.Height))
	c.Set("X-Elapsed-Ms", strconv.FormatInt(res.Elapsed.Milliseconds(), 10))
	return c.Send(res.Data)
}

func (s *Server) observeStill(p recolor.Params, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.StillRequest(p.Deficiency, time.Since(start), err)
	}
}

// requestImage returns the uploaded image bytes.
func (s *Server) requestImage(c *fiber.Ctx) ([]byte, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		body := c.Body()
		if len(body) == 0 {
			return nil, &recolor.InputError{Err: codec.ErrEmptyInput}
		}
		// The body buffer is reused once the handler returns.
		return append([]byte(nil), body...), nil
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return nil, &recolor.InputError{Err: fmt.Errorf("multipart field \"image\": %w", err)}
	}
	if s.cfg.MaxFrameBytes > 0 && fh.Size > int64(s.cfg.MaxFrameBytes) {
		return nil, &recolor.ResourceError{Err: codec.ErrInputTooLarge}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
