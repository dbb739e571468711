package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eyeinthesky6/indexpilot-sub002/audit"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// decisionFeed is an optional live stream of audit events, mirroring
// the teacher's ws.Hub broadcast pattern but pushing decision/rollback
// events instead of market ticks.
type decisionFeed struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newDecisionFeed(logger *logging.Logger) *decisionFeed {
	return &decisionFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

func (f *decisionFeed) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("decision feed upgrade failed", logging.String("error", err.Error()))
		return
	}

	send := make(chan []byte, 256)
	f.mu.Lock()
	f.clients[conn] = send
	f.mu.Unlock()

	go f.writePump(conn, send)
	go f.readPump(conn, send)
}

func (f *decisionFeed) readPump(conn *websocket.Conn, send chan []byte) {
	defer f.disconnect(conn, send)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *decisionFeed) writePump(conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *decisionFeed) disconnect(conn *websocket.Conn, send chan []byte) {
	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	close(send)
	conn.Close()
}

// Emit implements audit.Sink, broadcasting every event to connected
// feed subscribers alongside whatever sink it wraps.
type feedSink struct {
	feed *decisionFeed
	next audit.Sink
}

func newFeedSink(feed *decisionFeed, next audit.Sink) *feedSink {
	return &feedSink{feed: feed, next: next}
}

func (s *feedSink) Emit(ctx context.Context, e audit.Event) error {
	payload, err := json.Marshal(e)
	if err == nil {
		s.feed.broadcast(payload)
	}
	if s.next != nil {
		return s.next.Emit(ctx, e)
	}
	return nil
}

func (f *decisionFeed) broadcast(payload []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for conn, send := range f.clients {
		select {
		case send <- payload:
		default:
			f.logger.Warn("decision feed client slow, dropping message", logging.String("remote", conn.RemoteAddr().String()))
		}
	}
}
