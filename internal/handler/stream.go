package handler

import (
	"net/http"
	"time"

	"fictures-server/internal/metrics"
	"fictures-server/internal/models"
	"fictures-server/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	// клиент присылает только запрос генерации
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin проверяет CORS-middleware перед апгрейдом
	CheckOrigin: func(r *http.Request) bool { return true },
}

// generateSSE запускает пайплайн и отдаёт прогресс как text/event-stream.
// Ошибки запроса возвращаются обычным JSON до начала стрима.
func (h *StoryHandler) generateSSE(c *gin.Context) {
	var in models.GenerationRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	actor := actorFromContext(c)
	sink := pipeline.NewChannelSink(h.streamBuffer)
	runID, err := h.runs.Start(c.Request.Context(), actor, in, sink)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	log := h.logger.With(zap.String("run_id", runID.String()), zap.String("userID", actor.UserID))
	log.Info("SSE generation stream opened")

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("X-Run-ID", runID.String())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	events := sink.Events()
	for {
		select {
		case <-c.Request.Context().Done():
			sink.Detach()
			log.Info("Client disconnected, run continues in background")
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug("SSE generation stream closed")
				return
			}
			frame, err := pipeline.FormatSSE(ev)
			if err != nil {
				log.Error("Failed to encode progress event", zap.Error(err))
				continue
			}
			if _, err := c.Writer.Write(frame); err != nil {
				sink.Detach()
				metrics.ProgressWriteFailuresTotal.WithLabelValues("sse").Inc()
				log.Warn("Failed to write SSE frame, run continues in background", zap.Error(err))
				return
			}
			c.Writer.Flush()
		}
	}
}

// generateWS - тот же запуск, но события идут текстовыми кадрами WebSocket.
// Первое сообщение клиента - JSON запроса генерации.
func (h *StoryHandler) generateWS(c *gin.Context) {
	actor := actorFromContext(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.String("userID", actor.UserID), zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

	var in models.GenerationRequestInput
	if err := conn.ReadJSON(&in); err != nil {
		h.logger.Warn("Failed to read generation request from websocket", zap.String("userID", actor.UserID), zap.Error(err))
		h.wsClose(conn, websocket.CloseUnsupportedData, "invalid request")
		return
	}

	sink := pipeline.NewChannelSink(h.streamBuffer)
	runID, err := h.runs.Start(c.Request.Context(), actor, in, sink)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(models.ProgressEvent{Phase: models.EventError, Message: "generation request rejected", Error: err.Error()})
		h.wsClose(conn, websocket.ClosePolicyViolation, "rejected")
		return
	}
	log := h.logger.With(zap.String("run_id", runID.String()), zap.String("userID", actor.UserID))
	log.Info("WebSocket generation stream opened")

	// читатель нужен только для pong и закрытия со стороны клиента
	closed := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	events := sink.Events()
	for {
		select {
		case <-closed:
			sink.Detach()
			log.Info("WebSocket client disconnected, run continues in background")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sink.Detach()
				return
			}
		case ev, ok := <-events:
			if !ok {
				h.wsClose(conn, websocket.CloseNormalClosure, "done")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				sink.Detach()
				metrics.ProgressWriteFailuresTotal.WithLabelValues("websocket").Inc()
				log.Warn("Failed to write websocket frame, run continues in background", zap.Error(err))
				return
			}
		}
	}
}

func (h *StoryHandler) wsClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
