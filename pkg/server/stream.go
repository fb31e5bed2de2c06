package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	statsws "github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/hub"
	"github.com/teslashibe/go-daltonize/pkg/protocol"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
	"github.com/teslashibe/go-daltonize/pkg/session"
)

const streamWriteWait = 10 * time.Second

// streamConn is the session emitter for one websocket. Writes come from
// both the read loop and the session worker, so they are serialized.
type streamConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	// enc is the encoding of the most recent client message; replies use it.
	enc atomic.Uint32
}

func (sc *streamConn) encoding() protocol.Encoding {
	return protocol.Encoding(sc.enc.Load())
}

func (sc *streamConn) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if msg.Encoding == protocol.EncodingMsgpack {
		mt = websocket.BinaryMessage
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return sc.conn.WriteMessage(mt, data)
}

func (sc *streamConn) close(code int, text string) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	sc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// EmitFrame sends a processed frame.
func (sc *streamConn) EmitFrame(out session.Output) error {
	msg, err := protocol.NewProcessedFrameMessage(sc.encoding(), out.Format, out.Data, out.DataURL,
		out.Seq, out.Width, out.Height, out.Elapsed)
	if err != nil {
		return err
	}
	return sc.send(msg)
}

// EmitError sends a non-fatal error event.
func (sc *streamConn) EmitError(seq uint64, err error) error {
	msg, mErr := protocol.NewErrorMessage(sc.encoding(), err.Error(), string(recolor.KindOf(err)), seq)
	if mErr != nil {
		return mErr
	}
	return sc.send(msg)
}

func (sc *streamConn) status(sess *session.Session, text string) {
	msg, err := protocol.NewStatusMessage(sc.encoding(), sess.ID(), sess.State().String(), text, deficiency.Names())
	if err == nil {
		err = sc.send(msg)
	}
	if err != nil {
		sc.logger.Debug("status send failed", "error", err)
	}
}

func (sc *streamConn) reportError(seq uint64, err error) {
	if sendErr := sc.EmitError(seq, err); sendErr != nil {
		sc.logger.Debug("error send failed", "error", sendErr)
	}
}

// readLimit bounds one inbound message. Text frames carry base64, which
// is a third larger than the image.
func (s *Server) readLimit() int64 {
	return int64(s.cfg.MaxFrameBytes)*4/3 + 64<<10
}

// handleStream runs one stream session for the lifetime of the socket.
func (s *Server) handleStream(c *websocket.Conn) {
	sc := &streamConn{conn: c, logger: s.logger}

	sess, err := s.registry.OnConnect(sc)
	if err != nil {
		s.logger.Warn("session rejected", "error", err)
		sc.reportError(0, err)
		sc.close(websocket.CloseTryAgainLater, "too many sessions")
		return
	}
	id := sess.ID()
	sc.logger = s.logger.With("session", id)

	// The connection is released when this handler returns, so the
	// watcher must be gone by then.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-sess.Done():
			// Closed by the registry or by a failed emit: unblock the read loop.
			sc.close(websocket.CloseGoingAway, "session closed")
			c.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		s.registry.OnDisconnect(id)
		wg.Wait()
	}()

	initial := session.Update{Deficiency: c.Query("deficiency")}
	if v := c.Query("strength"); v != "" {
		st, err := strconv.ParseFloat(v, 64)
		if err != nil {
			sc.reportError(0, &recolor.InputError{Err: err})
		} else {
			initial.Strength = &st
		}
	}
	if err := sess.OnParams(initial); err != nil {
		sc.reportError(0, err)
	}
	sc.status(sess, "connected")

	c.SetReadLimit(s.readLimit())
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sc.logger.Debug("stream read error", "error", err)
			}
			return
		}

		enc := protocol.EncodingJSON
		if mt == websocket.BinaryMessage {
			enc = protocol.EncodingMsgpack
		}
		sc.enc.Store(uint32(enc))

		seq, err := s.dispatch(sess, sc, enc, data)
		if err == nil {
			continue
		}
		sc.reportError(seq, err)
		if errors.Is(err, recolor.ErrStaleSession) {
			return
		}
	}
}

// dispatch handles one client message. The returned error is reported to
// the client as an error event for seq.
func (s *Server) dispatch(sess *session.Session, sc *streamConn, enc protocol.Encoding, data []byte) (uint64, error) {
	msg, err := protocol.Parse(enc, data)
	if err != nil {
		return 0, &recolor.InputError{Err: err}
	}

	switch msg.Type {
	case protocol.TypeFrame:
		fd, err := msg.GetFrameData()
		if err != nil {
			return 0, &recolor.InputError{Err: err}
		}
		payload, err := fd.Payload()
		if err != nil {
			return fd.Seq, recolor.Classify(err)
		}
		if s.cfg.MaxFrameBytes > 0 && len(payload.Data) > s.cfg.MaxFrameBytes {
			return fd.Seq, &recolor.ResourceError{Err: fmt.Errorf("%w: %d bytes", codec.ErrInputTooLarge, len(payload.Data))}
		}
		return fd.Seq, sess.OnFrame(session.Input{
			Seq:     fd.Seq,
			Data:    payload.Data,
			DataURL: payload.DataURL,
			Update:  session.Update{Deficiency: fd.Deficiency, Strength: fd.Strength},
		})

	case protocol.TypeParams:
		pd, err := msg.GetParamsData()
		if err != nil {
			return 0, &recolor.InputError{Err: err}
		}
		if err := sess.OnParams(session.Update{Deficiency: pd.Deficiency, Strength: pd.Strength}); err != nil {
			return 0, err
		}
		sc.status(sess, "params updated")
		return 0, nil

	case protocol.TypePing:
		sess.Touch()
		pd, err := msg.GetPingData()
		if err != nil {
			return 0, &recolor.InputError{Err: err}
		}
		pong, err := protocol.NewPongMessage(enc, pd.ID, pd.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return 0, err
		}
		if err := sc.send(pong); err != nil {
			sc.logger.Debug("pong send failed", "error", err)
		}
		return 0, nil

	default:
		return 0, &recolor.InputError{Err: fmt.Errorf("unsupported message type %q", msg.Type)}
	}
}

// statsHandler serves registry statistics to hub watchers.
func (s *Server) statsHandler() fiber.Handler {
	return statsws.New(func(c *statsws.Conn) {
		client := hub.NewClient(s.stats, c)
		if client == nil {
			return
		}
		client.Run()
	})
}

// StatsSnapshot is the payload of stats messages.
type StatsSnapshot struct {
	Registry session.RegistryStats `json:"registry"`
	Sessions []session.Stats       `json:"sessions"`
}

// StatsSource returns a hub feed source producing stats messages.
func (s *Server) StatsSource() func() (hub.Message, error) {
	return func() (hub.Message, error) {
		msg, err := protocol.NewStatsMessage(StatsSnapshot{
			Registry: s.registry.Stats(),
			Sessions: s.registry.Sessions(),
		})
		if err != nil {
			return hub.Message{}, err
		}
		data, err := msg.Bytes()
		if err != nil {
			return hub.Message{}, err
		}
		return hub.Message{Data: data}, nil
	}
}
