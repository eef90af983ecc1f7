package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/report"
	"github.com/vsoverseer/simcore/internal/rng"
	"github.com/vsoverseer/simcore/internal/simulation"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleStream sends one text message per episode in generation order,
// then one message holding the aggregate, then a normal close.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	opts := config.ParseRunValues(r.URL.Query(), s.opts.Defaults)
	if err := s.checkEpisodes(opts.Episodes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	g := rng.New(opts.Seed)
	var acc simulation.Accumulator
	episodes := make([]models.Episode, 0, opts.Episodes)
	for i := 0; i < opts.Episodes; i++ {
		ep := simulation.RunEpisode(opts.Traits, g)
		acc.Add(ep)
		episodes = append(episodes, ep)

		data, err := report.EncodeEpisode(ep)
		if err != nil {
			s.logger.Error("encoding episode", "error", err)
			return
		}
		if err := s.send(conn, data); err != nil {
			s.logger.Debug("stream client went away", "sent", i, "error", err)
			return
		}
	}

	stats := acc.Stats()
	data, err := report.EncodeAggregate(stats)
	if err != nil {
		s.logger.Error("encoding aggregate", "error", err)
		return
	}
	if err := s.send(conn, data); err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	s.finishRun(r.Context(), opts, models.Batch{Episodes: episodes, Aggregate: stats})
}

func (s *Server) send(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
