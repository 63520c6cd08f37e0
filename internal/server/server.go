package server

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clickpilot/clickpilot/internal/config"
	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/journal"
	"github.com/clickpilot/clickpilot/internal/screen"
	"github.com/clickpilot/clickpilot/internal/session"
	"github.com/clickpilot/clickpilot/internal/trace"
	"github.com/clickpilot/clickpilot/internal/vision"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

type StartMessage struct {
	Type    string `json:"type"`
	Variant string `json:"variant"`
}

type TargetMessage struct {
	Type   string `json:"type"`
	Target int    `json:"target"`
}

type CalculatorMessage struct {
	Type       string  `json:"type"`
	Amount     float64 `json:"amount"`
	Multiplier float64 `json:"multiplier"`
	UnitCost   float64 `json:"unit_cost"`
}

type EventMessage struct {
	Type     string           `json:"type"`
	Snapshot session.Snapshot `json:"snapshot"`
	Reason   string           `json:"reason,omitempty"`
	Click    image.Point      `json:"click"`
}

type LogMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AckMessage struct {
	Type   string `json:"type"`
	Of     string `json:"of"`
	Target int    `json:"target,omitempty"`
}

// captureRequest is the REST payload building a baseline.
type captureRequest struct {
	Region  screen.Region  `json:"region"`
	AnchorX int            `json:"anchor_x"`
	AnchorY int            `json:"anchor_y"`
	Hold    *screen.Region `json:"hold,omitempty"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	cfg     *config.Config
	sess    *session.Coordinator
	sampler screen.Sampler
	jrnl    *journal.Journal

	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server and starts its broadcasters.
func New(cfg *config.Config, sess *session.Coordinator, sampler screen.Sampler, jrnl *journal.Journal) *Server {
	s := &Server{
		cfg:        cfg,
		sess:       sess,
		sampler:    sampler,
		jrnl:       jrnl,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastEvents()
	go s.broadcastJournal()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/snapshot/save", s.handleSnapshotSave)
	mux.HandleFunc("POST /api/snapshot/restore", s.handleSnapshotRestore)
	mux.HandleFunc("POST /api/capture", s.handleCapture)
	mux.HandleFunc("GET /api/journal", s.handleJournal)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Fresh connections get the current state immediately.
	_ = wsjson.Write(baseCtx, conn, EventMessage{Type: "state", Snapshot: s.sess.Snapshot()})

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		s.handleCommand(baseCtx, conn, base.Type, msg)
	}
}

func (s *Server) handleCommand(ctx context.Context, conn *websocket.Conn, kind string, raw json.RawMessage) {
	ctx, span := trace.StartSpan(ctx, "command."+kind)
	defer span.End()

	var err error
	ack := AckMessage{Type: "ack", Of: kind}

	switch kind {
	case "start":
		var start StartMessage
		if err = json.Unmarshal(raw, &start); err != nil {
			break
		}
		variant, ok := session.ParseVariant(start.Variant)
		if !ok {
			err = apperrors.Newf(apperrors.ConfigInvalid, "unknown variant %q", start.Variant)
			break
		}
		err = s.sess.Start(variant)
	case "pause":
		err = s.sess.Pause()
	case "resume":
		err = s.sess.Resume()
	case "stop":
		err = s.sess.Stop()
	case "step":
		err = s.sess.RequestStep()
	case "set_target":
		var tm TargetMessage
		if err = json.Unmarshal(raw, &tm); err != nil {
			break
		}
		err = s.sess.SetTarget(tm.Target)
	case "calculator":
		var calc CalculatorMessage
		if err = json.Unmarshal(raw, &calc); err != nil {
			break
		}
		ack.Target, err = s.sess.ApplyCalculator(calc.Amount, calc.Multiplier, calc.UnitCost)
	case "reset":
		err = s.sess.ResetCounts()
	default:
		err = apperrors.Newf(apperrors.ConfigInvalid, "unknown command %q", kind)
	}

	if err != nil {
		span.SetAttr("error", err.Error())
		_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}
	_ = wsjson.Write(ctx, conn, ack)
}

// broadcastEvents fans session events out to every connection.
func (s *Server) broadcastEvents() {
	events, cancel := s.sess.Subscribe()
	defer cancel()

	for ev := range events {
		s.broadcast(EventMessage{
			Type:     ev.Kind,
			Snapshot: ev.Snapshot,
			Reason:   ev.Reason,
			Click:    ev.Click,
		})
	}
}

// broadcastJournal tails the run log to every connection.
func (s *Server) broadcastJournal() {
	for line := range s.jrnl.Events() {
		s.broadcast(LogMessage{Type: "log", Timestamp: line.Timestamp, Text: line.Text})
	}
}

func (s *Server) broadcast(msg interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = wsjson.Write(context.Background(), c, msg)
		}(conn)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Save(s.cfg.SnapshotPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": s.cfg.SnapshotPath})
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Restore(s.cfg.SnapshotPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

// handleCapture grabs the requested region and installs it as the
// readiness baseline. The anchor defaults to the region center.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.ConfigInvalid, "parse capture request"))
		return
	}
	if !req.Region.Valid() || req.Region.W > MaxRegionEdge || req.Region.H > MaxRegionEdge {
		writeError(w, apperrors.Newf(apperrors.ConfigInvalid, "capture region %s invalid", req.Region))
		return
	}

	anchor := image.Pt(req.AnchorX, req.AnchorY)
	if anchor == (image.Point{}) {
		anchor = image.Pt(req.Region.X+req.Region.W/2, req.Region.Y+req.Region.H/2)
	}
	if !req.Region.Contains(anchor.X, anchor.Y) {
		writeError(w, apperrors.Newf(apperrors.ConfigInvalid, "anchor (%d,%d) outside region %s", anchor.X, anchor.Y, req.Region))
		return
	}

	img, err := s.sampler.Capture(req.Region)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sess.SetCapture(vision.NewBaseline(req.Region, anchor, img)); err != nil {
		writeError(w, err)
		return
	}
	if req.Hold != nil {
		if err := s.sess.SetHoldRegion(*req.Hold); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("since"); q != "" {
		cutoff, err := time.Parse(time.RFC3339, q)
		if err != nil {
			writeError(w, apperrors.Newf(apperrors.ConfigInvalid, "since %q is not RFC 3339", q))
			return
		}
		writeJSON(w, http.StatusOK, s.jrnl.Since(cutoff))
		return
	}

	n := DefaultJournalLines
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = v
		}
	}
	writeJSON(w, http.StatusOK, s.jrnl.Recent(n))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case apperrors.ConfigInvalid:
		status = http.StatusBadRequest
	case apperrors.NoCapture, apperrors.SessionBusy:
		status = http.StatusConflict
	case apperrors.CaptureFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  apperrors.Code(err).String(),
	})
}
