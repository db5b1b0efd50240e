package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"soundscape/logger"
	"soundscape/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsPollInterval = 500 * time.Millisecond
	wsWriteWait    = 10 * time.Second
	wsMaxSession   = 45 * time.Minute
)

// ExportProgressWSHandler streams render progress snapshots until the job
// reaches a terminal state or the client goes away.
func (h *APIHandler) ExportProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if _, err := h.ownedJob(r, jobID); err != nil {
		writeError(w, http.StatusNotFound, "export job not found")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// drain reads so client close frames are noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()
	deadline := time.After(wsMaxSession)

	var lastDone, lastTotal = -1, -1
	for {
		select {
		case <-closed:
			return
		case <-deadline:
			return
		case <-ticker.C:
		}

		p, ok, err := h.progress.Get(r.Context(), jobID)
		if err != nil {
			logger.Warn("progress read failed",
				logger.String("job_id", jobID), logger.ErrorField(err))
			continue
		}
		if !ok {
			continue
		}
		if p.ChunksDone == lastDone && p.ChunksTotal == lastTotal &&
			p.Status == model.JobReserved {
			continue
		}
		lastDone, lastTotal = p.ChunksDone, p.ChunksTotal

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(p); err != nil {
			return
		}
		if p.Status != model.JobReserved {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
			return
		}
	}
}
