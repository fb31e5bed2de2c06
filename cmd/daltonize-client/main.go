// daltonize-client: exercise a daltonize server
//
//	daltonize-client still  -deficiency deutan photo.jpg
//	daltonize-client stream -deficiency protan -fps 15 -frames 300 photo.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/image/draw"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-daltonize/internal/config"
	"github.com/teslashibe/go-daltonize/internal/httpc"
	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/frame"
	"github.com/teslashibe/go-daltonize/pkg/protocol"
)

var (
	serverURL  = flag.String("server", config.ServerURL("http://localhost:5000"), "Server base URL ($DALTONIZE_URL)")
	defFlag    = flag.String("deficiency", "deuteranopia", "Deficiency to correct")
	strength   = flag.Float64("strength", 1.0, "Correction strength in [0,1]")
	out        = flag.String("out", "", "Output file for still mode (default <input>_recolored.<ext>)")
	format     = flag.String("format", "", "Output format for still mode (png or jpeg)")
	fps        = flag.Float64("fps", 10, "Frames per second in stream mode")
	frames     = flag.Int("frames", 100, "Frames to send in stream mode")
	width      = flag.Int("width", 0, "Downscale frames to this width before streaming (0 keeps size)")
	binary     = flag.Bool("binary", false, "Use msgpack binary frames instead of JSON data URLs")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

// drainTimeout bounds the wait for replies after the last frame is sent.
const drainTimeout = 5 * time.Second

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: daltonize-client [flags] still|stream <image>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log.Init(level)

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode, path := flag.Arg(0), flag.Arg(1); mode {
	case "still":
		err = runStill(ctx, path)
	case "stream":
		err = runStream(ctx, path)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func runStill(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	in, err := codec.Sniff(data)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("strength", strconv.FormatFloat(*strength, 'f', -1, 64))
	if *format != "" {
		q.Set("format", *format)
	}
	endpoint := fmt.Sprintf("%s/correct/%s?%s", strings.TrimRight(*serverURL, "/"), url.PathEscape(*defFlag), q.Encode())

	start := time.Now()
	resp, err := httpc.Post(ctx, endpoint, in.MIME(), data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	dst := *out
	if dst == "" {
		outFormat, err := codec.ParseFormat(resp.Header.Get("Content-Type"))
		if err != nil {
			outFormat = codec.FormatPNG
		}
		base := strings.TrimSuffix(path, filepath.Ext(path))
		dst = fmt.Sprintf("%s_recolored.%s", base, outFormat.Extension())
	}
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return err
	}
	fmt.Printf("✅ %s → %s (%d bytes, %s)\n", path, dst, len(body), time.Since(start).Round(time.Millisecond))
	return nil
}

// loadFrame decodes path and optionally downscales it, returning the bytes
// to stream and their format.
func loadFrame(path string) ([]byte, codec.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	c := codec.New()
	f, inFormat, err := c.Decode(data)
	if err != nil {
		return nil, "", err
	}
	if *width <= 0 || *width >= f.Width {
		return data, inFormat, nil
	}

	h := f.Height * *width / f.Width
	dst := image.NewNRGBA(image.Rect(0, 0, *width, max(1, h)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), f.Image(), image.Rect(0, 0, f.Width, f.Height), draw.Src, nil)

	outFormat := inFormat
	if !outFormat.Encodable() {
		outFormat = codec.FormatJPEG
	}
	scaled, outFormat, err := c.Encode(frame.FromImage(dst), outFormat)
	return scaled, outFormat, err
}

type streamStats struct {
	mu        sync.Mutex
	sent      int
	processed int
	errors    int
	latencies []time.Duration
	sentAt    map[uint64]time.Time
}

func (s *streamStats) markSent(seq uint64) {
	s.mu.Lock()
	s.sent++
	s.sentAt[seq] = time.Now()
	s.mu.Unlock()
}

func (s *streamStats) markProcessed(seq uint64) {
	s.mu.Lock()
	s.processed++
	if at, ok := s.sentAt[seq]; ok {
		s.latencies = append(s.latencies, time.Since(at))
		delete(s.sentAt, seq)
	}
	s.mu.Unlock()
}

// settled reports whether every sent frame has been answered.
func (s *streamStats) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed+s.errors >= s.sent
}

func (s *streamStats) markError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func runStream(ctx context.Context, path string) error {
	img, imgFormat, err := loadFrame(path)
	if err != nil {
		return err
	}

	u, err := url.Parse(*serverURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/stream"
	u.RawQuery = url.Values{"deficiency": {*defFlag}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()
	log.Info("connected", "url", u.String(), "frame_bytes", len(img), "format", imgFormat)

	stats := &streamStats{sentAt: make(map[uint64]time.Time)}
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(conn, stats)
	}()

	enc := protocol.EncodingJSON
	mt := websocket.TextMessage
	if *binary {
		enc = protocol.EncodingMsgpack
		mt = websocket.BinaryMessage
	}

	limiter := rate.NewLimiter(rate.Limit(*fps), 1)
	start := time.Now()
	for seq := uint64(1); seq <= uint64(*frames); seq++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		msg, err := protocol.NewFrameMessage(enc, imgFormat, img, "", strength, seq)
		if err != nil {
			return err
		}
		data, err := msg.Bytes()
		if err != nil {
			return err
		}
		stats.markSent(seq)
		if err := conn.WriteMessage(mt, data); err != nil {
			return fmt.Errorf("send frame %d: %w", seq, err)
		}
	}

	// Superseded frames are never answered, so the wait is bounded.
	deadline := time.After(drainTimeout)
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
drain:
	for !stats.settled() {
		select {
		case <-readDone:
			break drain
		case <-deadline:
			break drain
		case <-ctx.Done():
			break drain
		case <-poll.C:
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	printStreamStats(stats, time.Since(start))
	return nil
}

func readLoop(conn *websocket.Conn, stats *streamStats) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		enc := protocol.EncodingJSON
		if mt == websocket.BinaryMessage {
			enc = protocol.EncodingMsgpack
		}
		msg, err := protocol.Parse(enc, data)
		if err != nil {
			log.Warn("bad message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeProcessedFrame:
			pf, err := msg.GetProcessedFrameData()
			if err == nil {
				stats.markProcessed(pf.Seq)
			}
		case protocol.TypeError:
			stats.markError()
			if ed, err := msg.GetErrorData(); err == nil {
				log.Warn("server error", "seq", ed.Seq, "kind", ed.Kind, "message", ed.Message)
			}
		case protocol.TypeStatus:
			if st, err := msg.GetStatusData(); err == nil {
				log.Info("status", "session", st.SessionID, "state", st.State)
			}
		}
	}
}

func printStreamStats(s *streamStats, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Printf("\n📊 Stream summary (%s)\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Sent:      %d\n", s.sent)
	fmt.Printf("   Processed: %d\n", s.processed)
	fmt.Printf("   Dropped:   %d\n", s.sent-s.processed-s.errors)
	fmt.Printf("   Errors:    %d\n", s.errors)
	if len(s.latencies) == 0 {
		return
	}
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	pct := func(p float64) time.Duration {
		return s.latencies[int(p*float64(len(s.latencies)-1))]
	}
	fmt.Printf("   Latency:   p50 %s  p95 %s  max %s\n",
		pct(0.5).Round(time.Millisecond), pct(0.95).Round(time.Millisecond), s.latencies[len(s.latencies)-1].Round(time.Millisecond))
}
