package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"smartbudget/internal/log"
	"smartbudget/internal/sheets/xlsx"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleEvents streams change events as JSON text frames until the client
// disconnects or the store closes. A client that falls behind loses events
// and should re-read state, comparing against /readyz versions.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	// Subscribed before the handshake completes so no event after it is missed.
	events, unsubscribe := s.budget.Subscribe(0)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		logger.WarnContext(ctx, "Websocket upgrade failed", log.FieldError, err)
		return
	}
	defer conn.Close()
	logger.InfoContext(ctx, "Event stream opened")

	// Client frames are discarded; reading keeps pongs and close frames flowing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.WarnContext(ctx, "Unexpected websocket close", log.FieldError, err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	sent := 0
	defer func() { logger.InfoContext(ctx, "Event stream closed", log.FieldCount, sent) }()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.WarnContext(ctx, "Failed to write change event", log.FieldError, err)
				return
			}
			sent++
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := xlsx.Write(&buf, "Transactions", s.budget.Transactions()); err != nil {
		fail(w, r, "export", err)
		return
	}
	name := "smartbudget_" + time.Now().In(s.budget.Location()).Format("20060102_150405") + ".xlsx"
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
