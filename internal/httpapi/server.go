package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/studybuddyhq/studybuddy/internal/auth"
	"github.com/studybuddyhq/studybuddy/internal/config"
	"github.com/studybuddyhq/studybuddy/internal/observability"
	"github.com/studybuddyhq/studybuddy/internal/profile"
	"github.com/studybuddyhq/studybuddy/internal/protocol"
	"github.com/studybuddyhq/studybuddy/internal/session"
	"github.com/studybuddyhq/studybuddy/internal/study"
	"github.com/studybuddyhq/studybuddy/internal/support"
	"github.com/studybuddyhq/studybuddy/internal/views"
)

type Orchestrator interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	metrics      *observability.Metrics
	profiles     *profile.Service
	support      *support.Service
	views        *views.Router
	study        *study.Service
	challenge    *study.Challenge
	admin        *auth.Admin
	upgrader     websocket.Upgrader
	static       http.Handler
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	orchestrator Orchestrator,
	metrics *observability.Metrics,
	profiles *profile.Service,
	supportSvc *support.Service,
	viewRouter *views.Router,
	studySvc *study.Service,
	challenge *study.Challenge,
	admin *auth.Admin,
) *Server {
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		metrics:      metrics,
		profiles:     profiles,
		support:      supportSvc,
		views:        viewRouter,
		study:        studySvc,
		challenge:    challenge,
		admin:        admin,
		static:       newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin. Another website must not be able to drive a
				// student's mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/profile/{id}", s.handleGetProfile)
	r.Put("/v1/profile/{id}", s.handleUpdateProfile)
	r.Post("/v1/profile/{id}/visit", s.handleRecordVisit)

	r.Get("/v1/views/{userID}", s.handleCurrentView)
	r.Post("/v1/views/{userID}", s.handleNavigate)

	r.Post("/v1/study/explain", s.handleExplain)
	r.Post("/v1/study/math", s.handleSolveMath)
	r.Post("/v1/study/translate", s.handleTranslate)
	r.Post("/v1/study/answer", s.handleAnswer)

	r.Get("/v1/challenge/{userID}", s.handleChallengeState)
	r.Post("/v1/challenge/{userID}/check", s.handleChallengeCheck)
	r.Post("/v1/challenge/{userID}/claim", s.handleChallengeClaim)

	r.Get("/v1/support/{userID}/messages", s.handleListSupport)
	r.Post("/v1/support/{userID}/messages", s.handlePostSupport)

	r.Post("/v1/admin/login", s.handleAdminLogin)
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(s.admin.Middleware)
		r.Get("/users", s.handleAdminUsers)
		r.Get("/inbox", s.handleAdminInbox)
		r.Post("/reply", s.handleAdminReply)
	})

	r.Post("/v1/voice/session", s.handleCreateSession)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Get("/v1/voice/session/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"admin_enabled": s.admin.Enabled(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "profile_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := s.profiles.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "profile_load_failed", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		p.Name = strings.TrimSpace(req.Name)
	}
	if req.Avatar != "" {
		p.Avatar = req.Avatar
	}
	saved, err := s.profiles.Save(r.Context(), p)
	if err != nil {
		respondError(w, http.StatusBadRequest, "profile_save_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleRecordVisit(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.RecordDailyVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "visit_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleCurrentView(w http.ResponseWriter, r *http.Request) {
	v := s.views.Current(chi.URLParam(r, "userID"))
	respondJSON(w, http.StatusOK, map[string]string{"view": string(v)})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View string `json:"view"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.views.Navigate(chi.URLParam(r, "userID"), views.View(req.View)); err != nil {
		respondError(w, http.StatusBadRequest, "unknown_view", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"view": req.View})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic       string `json:"topic"`
		ImageBase64 string `json:"image_base64"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	start := time.Now()
	out, err := s.study.Explain(r.Context(), req.Topic, req.ImageBase64)
	if err != nil {
		s.respondTaskFailure(w, "explain", err)
		return
	}
	s.metrics.TaskRequests.WithLabelValues("explain", "ok").Inc()
	s.metrics.ObserveStage(observability.StageTaskExplain, time.Since(start))
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSolveMath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Problem     string `json:"problem"`
		ImageBase64 string `json:"image_base64"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	start := time.Now()
	out, err := s.study.SolveMath(r.Context(), req.Problem, req.ImageBase64)
	if err != nil {
		s.respondTaskFailure(w, "math", err)
		return
	}
	s.metrics.TaskRequests.WithLabelValues("math", "ok").Inc()
	s.metrics.ObserveStage(observability.StageTaskMath, time.Since(start))
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sentence string `json:"sentence"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	start := time.Now()
	out, err := s.study.Translate(r.Context(), req.Sentence)
	if err != nil {
		s.respondTaskFailure(w, "translate", err)
		return
	}
	s.metrics.TaskRequests.WithLabelValues("translate", "ok").Inc()
	s.metrics.ObserveStage(observability.StageTaskSpeak, time.Since(start))
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	start := time.Now()
	out, err := s.study.Answer(r.Context(), req.Question)
	if err != nil {
		s.respondTaskFailure(w, "answer", err)
		return
	}
	s.metrics.TaskRequests.WithLabelValues("answer", "ok").Inc()
	s.metrics.ObserveStage(observability.StageTaskAnswer, time.Since(start))
	respondJSON(w, http.StatusOK, map[string]string{"answer": out})
}

func (s *Server) respondTaskFailure(w http.ResponseWriter, task string, err error) {
	var failure *study.TaskFailure
	if !errors.As(err, &failure) {
		s.metrics.TaskRequests.WithLabelValues(task, "error").Inc()
		respondError(w, http.StatusInternalServerError, "task_failed", err.Error())
		return
	}
	s.metrics.TaskRequests.WithLabelValues(task, string(failure.Reason)).Inc()

	switch failure.Reason {
	case study.FailureInvalidInput:
		respondError(w, http.StatusBadRequest, string(failure.Reason), failure.Detail)
	case study.FailureUnreachable:
		respondError(w, http.StatusServiceUnavailable, string(failure.Reason), failure.Detail)
	default:
		respondError(w, http.StatusBadGateway, string(failure.Reason), failure.Detail)
	}
}

func (s *Server) handleChallengeState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.challenge.State(chi.URLParam(r, "userID")))
}

func (s *Server) handleChallengeCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Attempt string `json:"attempt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	correct, state := s.challenge.Check(chi.URLParam(r, "userID"), req.Attempt)
	respondJSON(w, http.StatusOK, map[string]any{
		"correct": correct,
		"state":   state,
	})
}

func (s *Server) handleChallengeClaim(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, err := s.challenge.Claim(userID)
	if err != nil {
		if errors.Is(err, study.ErrRewardClaimed) {
			respondError(w, http.StatusConflict, "reward_claimed", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "reward_not_ready", err.Error())
		return
	}

	p, err := s.profiles.AwardPoints(r.Context(), userID, s.cfg.DailyRewardPoints)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "award_failed", err.Error())
		return
	}
	s.metrics.PointsAwarded.Add(float64(s.cfg.DailyRewardPoints))
	respondJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"profile": p,
		"awarded": s.cfg.DailyRewardPoints,
	})
}

func (s *Server) handleListSupport(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.support.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "support_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handlePostSupport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := chi.URLParam(r, "userID")
	p, err := s.profiles.Load(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "profile_load_failed", err.Error())
		return
	}
	msg, err := s.support.PostUserMessage(r.Context(), userID, p.Name, req.Text)
	if err != nil {
		if errors.Is(err, support.ErrEmptyText) {
			respondError(w, http.StatusBadRequest, "empty_text", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "support_post_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
		UserID     string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	token, err := s.admin.Login(req.Identifier, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "ভুল তথ্য! আবার চেষ্টা করুন।")
		return
	}
	// Logging in from a student profile promotes that profile.
	if req.UserID != "" {
		if _, err := s.profiles.SetAdmin(r.Context(), req.UserID, true); err != nil {
			respondError(w, http.StatusInternalServerError, "profile_update_failed", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	roster, err := s.profiles.Roster(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "roster_load_failed", err.Error())
		return
	}
	pending, err := s.support.PendingByUser(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "inbox_load_failed", err.Error())
		return
	}
	totalPoints := 0
	for _, p := range roster {
		totalPoints += p.Points
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": roster,
		"stats": map[string]int{
			"totalUsers":      len(roster),
			"totalPoints":     totalPoints,
			"pendingMessages": len(pending),
		},
	})
}

func (s *Server) handleAdminInbox(w http.ResponseWriter, r *http.Request) {
	inboxes, err := s.support.PendingByUser(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "inbox_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"inboxes": inboxes})
}

func (s *Server) handleAdminReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	p, err := s.profiles.Load(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "profile_load_failed", err.Error())
		return
	}
	msg, err := s.support.PostAdminReply(r.Context(), req.UserID, p.Name, req.Text)
	if err != nil {
		if errors.Is(err, support.ErrEmptyText) {
			respondError(w, http.StatusBadRequest, "empty_text", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "reply_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	// One live session per student; hand back the existing one.
	if existing, ok := s.sessions.ActiveForUser(req.UserID); ok {
		respondJSON(w, http.StatusOK, existing)
		return
	}

	sess := s.sessions.Create(req.UserID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.orchestrator.RunConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the
				// outbound queue is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TranscriptDelta:
		return m.Type, true
	case protocol.TurnCommitted:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.PlaybackClear:
		return m.Type, true
	case protocol.StatusUpdate:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
