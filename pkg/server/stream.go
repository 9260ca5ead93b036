package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/resampler"
	"github.com/haivivi/voicegate/pkg/profile"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed between two client messages.
	readWait = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 256 * 1024

	// Longest utterance accepted on one stream.
	maxStreamAudio = 30 * time.Second

	// endMessage asks the server to verify the audio received so far.
	endMessage = "end"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// verifyStream collects mono audio and verifies it when the client sends
// "end". Binary messages are raw PCM16LE chunks, or RTP packets with L16
// payloads when ?framing=rtp. The sample rate defaults to the engine rate
// and may be set with ?rate=. The reply is one JSON message, a
// verify.Report or an ErrorResponse, after which the server closes the
// connection.
func (s *Server) verifyStream(c echo.Context) error {
	userID := c.Param("id")
	if err := profile.ValidateUserID(userID); err != nil {
		return err
	}
	rate := s.sampleRate
	if q := c.QueryParam("rate"); q != "" {
		r, err := strconv.Atoi(q)
		if err != nil || r < 8000 || r > 48000 {
			return badRequest("bad_request", fmt.Errorf("invalid rate %q", q))
		}
		rate = r
	}
	framing := c.QueryParam("framing")
	switch framing {
	case "":
		framing = framingPCM
	case framingPCM, framingRTP:
	default:
		return badRequest("bad_request", fmt.Errorf("invalid framing %q", framing))
	}
	challenge := c.QueryParam("challenge")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()
	done := s.metrics.StreamOpened()
	defer done()

	ctx := c.Request().Context()
	log := s.logger.With("user_id", userID, "remote", c.RealIP())
	log.DebugContext(ctx, "stream opened", "rate", rate, "framing", framing)

	maxBytes := int(maxStreamAudio.Seconds()) * rate * 2
	var buf bytes.Buffer
	asm := newRTPAssembler()
	conn.SetReadLimit(maxMessageSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "stream read failed", "error", err)
			}
			return nil
		}
		switch kind {
		case websocket.BinaryMessage:
			if framing == framingRTP {
				if err := asm.Add(msg); err != nil {
					s.writeStreamError(conn, badRequest("bad_audio", err))
					return nil
				}
			} else {
				buf.Write(msg)
			}
			if buf.Len()+asm.Size() > maxBytes {
				s.writeStreamError(conn, badRequest("audio_too_long", fmt.Errorf("stream exceeds %s", maxStreamAudio)))
				return nil
			}
		case websocket.TextMessage:
			if string(msg) != endMessage {
				s.writeStreamError(conn, badRequest("bad_request", fmt.Errorf("unexpected text message %q", msg)))
				return nil
			}
			data := buf.Bytes()
			if framing == framingRTP {
				var lost int
				data, lost = asm.PCM16LE()
				if lost > 0 {
					log.WarnContext(ctx, "rtp packets lost", "lost", lost)
				}
			}
			s.finishStream(c, conn, userID, rate, data, challenge)
			return nil
		}
	}
}

func (s *Server) finishStream(c echo.Context, conn *websocket.Conn, userID string, rate int, data []byte, challenge string) {
	seg, err := pcm.FromInt16LE(data, rate, 1)
	if err == nil {
		seg, err = resampler.Resample(seg, s.sampleRate)
	}
	if err != nil {
		s.writeStreamError(conn, badRequest("bad_audio", err))
		return
	}
	rep, err := s.runVerify(c.Request().Context(), userID, seg, challenge)
	if err != nil {
		s.writeStreamError(conn, err)
		return
	}
	s.writeStream(conn, rep)
}

func (s *Server) writeStreamError(conn *websocket.Conn, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= 500 {
		s.logger.Error("stream failed", "error", err)
		msg = "internal error"
	}
	s.writeStream(conn, ErrorResponse{Error: code, Message: msg})
}

func (s *Server) writeStream(conn *websocket.Conn, v any) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Warn("stream write failed", "error", err)
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("stream close failed", "error", err)
	}
}
