package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/observe"
)

// Watch event types.
const (
	EventTrial = "trial"
	EventReset = "reset"
)

// WatchEvent is one message on the ledger watch stream. A reset event is
// sent when the ledger was cleared for a refinement round or fresh search;
// the rows that follow belong to the new round.
type WatchEvent struct {
	Type  string        `json:"type"`
	Trial *ledger.Trial `json:"trial,omitempty"`
}

const watchWriteTimeout = 5 * time.Second

// handleWatch upgrades to a websocket and streams existing and new ledger
// rows until the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("server: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client messages and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	err = s.streamTrials(ctx, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
	default:
		observe.Logger(r.Context()).Warn("server: ledger watch ended", "err", err)
		conn.Close(websocket.StatusInternalError, "ledger unavailable")
	}
}

func (s *Server) streamTrials(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	var (
		sent  int
		first ledger.Trial
	)
	for {
		rows, err := s.trials.Trials(ctx)
		if err != nil {
			return err
		}
		if sent > 0 && (len(rows) < sent || rows[0] != first) {
			if err := send(ctx, conn, WatchEvent{Type: EventReset}); err != nil {
				return err
			}
			sent = 0
		}
		for i := sent; i < len(rows); i++ {
			if err := send(ctx, conn, WatchEvent{Type: EventTrial, Trial: &rows[i]}); err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			first = rows[0]
		}
		sent = len(rows)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, ev WatchEvent) error {
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
