package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/complyflow/engine/internal/config"
	"github.com/complyflow/engine/internal/logger"
	"github.com/complyflow/engine/recommend"
	"github.com/complyflow/engine/rules"
	"github.com/complyflow/engine/scoring"
	"github.com/complyflow/engine/trigger"
)

type Server struct {
	db         *sql.DB
	cfg        *config.Config
	engine     *rules.Engine
	ruleStore  rules.RuleStore
	ruleLog    rules.ExecutionLog
	dispatcher *trigger.Dispatcher
	trigStore  trigger.TriggerStore
	trigLog    trigger.ExecutionLog
	scores     *scoring.Service
	recs       recommend.Store
	router     *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db, cfg)
}

// NewServerWithDB wires the engine components onto an existing
// connection. Used directly by integration tests.
func NewServerWithDB(db *sql.DB, cfg *config.Config) (*Server, error) {
	s := &Server{
		db:        db,
		cfg:       cfg,
		ruleStore: rules.NewPostgresRuleStore(db),
		ruleLog:   rules.NewPostgresExecutionLog(db),
		trigStore: trigger.NewPostgresTriggerStore(db),
		trigLog:   trigger.NewPostgresExecutionLog(db),
		recs:      recommend.NewPostgresStore(db),
	}

	s.scores = scoring.NewService(scoring.NewPostgresScoreStore(db), logger.Logger, cfg.ScoreWorkers)

	executor := rules.NewExecutor(cfg.AgentTimeout)
	executor.Register(rules.ActionCreateRecommendation, rules.ActionTargetFunc(s.createRecommendation))

	engine, err := rules.NewEngine(s.ruleStore, s.ruleLog, executor, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}
	if cfg.TieBreak == "global_first" {
		engine.SetTieBreak(rules.PlatformFirst)
	}
	s.engine = engine

	// No downstream agent transport is wired in this binary; invocations
	// are logged and recorded in the execution log.
	invoker := trigger.AgentInvokerFunc(func(ctx context.Context, inv trigger.AgentInvocation) error {
		logger.Info("agent invoked",
			"agent", inv.AgentName,
			"action", inv.AgentAction,
			"trigger", inv.TriggerCode,
			"entity_type", inv.EntityType,
			"entity_id", inv.EntityID)
		return nil
	})
	s.dispatcher = trigger.NewDispatcher(s.trigStore, s.trigLog, invoker, trigger.DispatcherConfig{
		AgentTimeout: cfg.AgentTimeout,
		AwaitAgent:   cfg.AwaitAgent,
	}, logger.Logger)

	s.setupRoutes()
	return s, nil
}

// createRecommendation is the action target for create_recommendation
// rule actions: matched rules surface next-best-action suggestions.
func (s *Server) createRecommendation(ctx context.Context, cmd rules.Command) error {
	expires := time.Now().Add(recommend.DefaultTTL)
	rec := recommend.Recommendation{
		ID:         uuid.New().String(),
		TenantID:   cmd.TenantID,
		EntityType: stringParam(cmd.Parameters, "entity_type"),
		EntityID:   stringParam(cmd.Parameters, "entity_id"),
		ActionType: recommend.ActionType(stringParam(cmd.Parameters, "action_type")),
		Title:      stringParam(cmd.Parameters, "title"),
		Rationale:  stringParam(cmd.Parameters, "rationale"),
		Confidence: intParam(cmd.Parameters, "confidence", 70),
		Priority:   intParam(cmd.Parameters, "priority", 3),
		Status:     recommend.StatusPending,
		ExpiresAt:  &expires,
		CreatedAt:  time.Now(),
	}
	if rec.Title == "" {
		rec.Title = fmt.Sprintf("Recommended by rule %s", cmd.RuleCode)
	}
	return s.recs.Add(rec)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Post("/api/v1/events", s.handleIngestEvent)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/", s.handleListRules)
		r.Get("/executions", s.handleListRuleExecutions)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	r.Route("/api/v1/triggers", func(r chi.Router) {
		r.Post("/", s.handleCreateTrigger)
		r.Get("/", s.handleListTriggers)
		r.Get("/{triggerId}", s.handleGetTrigger)
		r.Put("/{triggerId}", s.handleUpdateTrigger)
		r.Delete("/{triggerId}", s.handleDeleteTrigger)
		r.Get("/{triggerId}/executions", s.handleListTriggerExecutions)
	})

	r.Route("/api/v1/scores", func(r chi.Router) {
		r.Post("/pci", s.handleScorePCI)
		r.Post("/engagement", s.handleScoreEngagement)
		r.Post("/motivation", s.handleScoreMotivation)
		r.Post("/confidence", s.handleScoreConfidence)
		r.Get("/{entityType}/{entityId}/{scoreType}", s.handleLatestScore)
		r.Get("/{entityType}/{entityId}/{scoreType}/history", s.handleScoreHistory)
	})

	r.Route("/api/v1/recommendations", func(r chi.Router) {
		r.Post("/generate", s.handleGenerateRecommendations)
		r.Get("/", s.handleListRecommendations)
		r.Post("/{recommendationId}/status", s.handleRecommendationStatus)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "event name is required", nil)
		return
	}

	now := time.Now()
	occurred := now
	if req.OccurredAt != nil {
		occurred = *req.OccurredAt
	}

	inv := rules.Invocation{
		TenantID:      req.TenantID,
		CorrelationID: middleware.GetReqID(r.Context()),
		Now:           now,
	}

	report, err := s.engine.ProcessEvent(r.Context(), inv, req.Name, req.Payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event processing failed", err)
		return
	}

	// Trigger dispatch is fire-and-forget relative to the request.
	err = s.dispatcher.Ingest(r.Context(), trigger.Event{
		Name:       req.Name,
		TenantID:   req.TenantID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Payload:    req.Payload,
		OccurredAt: occurred,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trigger dispatch failed", err)
		return
	}

	resp := EventResponse{
		TriggerEvent:   report.TriggerEvent,
		TotalEvaluated: report.TotalEvaluated,
		TotalMatched:   report.TotalMatched,
		Stopped:        report.Stopped,
		Executions:     make([]ExecutionResponse, 0, len(report.Executions)),
	}
	for _, e := range report.Executions {
		resp.Executions = append(resp.Executions, toExecutionResponse(e))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	rule.ID = uuid.New().String()

	if err := s.engine.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	all, err := s.ruleStore.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	out := make([]RuleResponse, 0, len(all))
	for _, rule := range all {
		out = append(out, toRuleResponse(rule))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ruleStore.Get(chi.URLParam(r, "ruleId"))
	if errors.Is(err, rules.ErrNotFound) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	rule.ID = chi.URLParam(r, "ruleId")

	if err := s.engine.UpdateRule(rule); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	var tenantID *string
	if t := r.URL.Query().Get("tenantId"); t != "" {
		tenantID = &t
	}
	limit := queryInt(r, "limit", 50)

	execs, err := s.ruleLog.Recent(tenantID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	out := make([]ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		out = append(out, toExecutionResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"executions": out})
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	t := req.toTrigger()
	t.ID = uuid.New().String()
	if err := t.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid trigger", err)
		return
	}
	if err := s.trigStore.Add(t); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to add trigger", err)
		return
	}
	respondJSON(w, http.StatusCreated, toTriggerResponse(t))
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	all, err := s.trigStore.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list triggers", err)
		return
	}
	out := make([]TriggerResponse, 0, len(all))
	for _, t := range all {
		out = append(out, toTriggerResponse(t))
	}
	respondJSON(w, http.StatusOK, map[string]any{"triggers": out})
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := s.trigStore.Get(chi.URLParam(r, "triggerId"))
	if errors.Is(err, trigger.ErrNotFound) {
		respondError(w, http.StatusNotFound, "trigger not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get trigger", err)
		return
	}
	respondJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	t := req.toTrigger()
	t.ID = chi.URLParam(r, "triggerId")
	if err := t.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid trigger", err)
		return
	}
	if err := s.trigStore.Update(t); err != nil {
		if errors.Is(err, trigger.ErrNotFound) {
			respondError(w, http.StatusNotFound, "trigger not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update trigger", err)
		return
	}
	respondJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.trigStore.Delete(chi.URLParam(r, "triggerId")); err != nil {
		respondError(w, http.StatusNotFound, "trigger not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTriggerExecutions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	execs, err := s.trigLog.Recent(chi.URLParam(r, "triggerId"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	out := make([]TriggerExecutionResponse, 0, len(execs))
	for _, e := range execs {
		out = append(out, toTriggerExecutionResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"executions": out})
}

func (s *Server) handleScorePCI(w http.ResponseWriter, r *http.Request) {
	var req PCIScoreRequest
	if !decodeScoreRequest(w, r, &req, &req.EntityRequest) {
		return
	}
	rec, err := s.scores.ComputePCI(r.Context(), req.ref(), req.toInputs())
	respondScore(w, rec, err)
}

func (s *Server) handleScoreEngagement(w http.ResponseWriter, r *http.Request) {
	var req EngagementScoreRequest
	if !decodeScoreRequest(w, r, &req, &req.EntityRequest) {
		return
	}
	rec, err := s.scores.ComputeEngagement(r.Context(), req.ref(), req.toInputs())
	respondScore(w, rec, err)
}

func (s *Server) handleScoreMotivation(w http.ResponseWriter, r *http.Request) {
	var req MotivationScoreRequest
	if !decodeScoreRequest(w, r, &req, &req.EntityRequest) {
		return
	}
	rec, err := s.scores.ComputeMotivation(r.Context(), req.ref(), req.toInputs())
	respondScore(w, rec, err)
}

func (s *Server) handleScoreConfidence(w http.ResponseWriter, r *http.Request) {
	var req ConfidenceScoreRequest
	if !decodeScoreRequest(w, r, &req, &req.EntityRequest) {
		return
	}
	rec, err := s.scores.ComputeConfidence(r.Context(), req.ref(), req.toInputs())
	respondScore(w, rec, err)
}

func decodeScoreRequest(w http.ResponseWriter, r *http.Request, req any, entity *EntityRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if entity.EntityType == "" || entity.EntityID == "" {
		respondError(w, http.StatusBadRequest, "entityType and entityId are required", nil)
		return false
	}
	return true
}

func respondScore(w http.ResponseWriter, rec *scoring.ScoreRecord, err error) {
	if err != nil {
		respondError(w, http.StatusInternalServerError, "score calculation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, toScoreResponse(rec))
}

func toScoreResponse(rec *scoring.ScoreRecord) ScoreResponse {
	var breakdown any
	if rec.BreakdownJSON != "" {
		_ = json.Unmarshal([]byte(rec.BreakdownJSON), &breakdown)
	}
	return ScoreResponse{
		ID:            rec.ID,
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		ScoreType:     string(rec.ScoreType),
		Score:         rec.Score,
		Band:          rec.Band,
		Breakdown:     breakdown,
		PreviousScore: rec.PreviousScore,
		ScoreChange:   rec.ScoreChange,
		CalculatedAt:  rec.CalculatedAt,
	}
}

func (s *Server) handleLatestScore(w http.ResponseWriter, r *http.Request) {
	ref := scoring.EntityRef{
		EntityType: chi.URLParam(r, "entityType"),
		EntityID:   chi.URLParam(r, "entityId"),
	}
	rec, err := s.scores.Latest(ref, scoring.ScoreType(chi.URLParam(r, "scoreType")))
	if errors.Is(err, scoring.ErrNoScore) {
		respondError(w, http.StatusNotFound, "no score recorded", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get score", err)
		return
	}
	respondJSON(w, http.StatusOK, toScoreResponse(rec))
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	ref := scoring.EntityRef{
		EntityType: chi.URLParam(r, "entityType"),
		EntityID:   chi.URLParam(r, "entityId"),
	}
	days := queryInt(r, "days", 30)

	recs, err := s.scores.History(ref, scoring.ScoreType(chi.URLParam(r, "scoreType")), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get score history", err)
		return
	}
	out := make([]ScoreResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toScoreResponse(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{"scores": out})
}

func (s *Server) handleGenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	var req GenerateRecommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.EntityType == "" || req.EntityID == "" {
		respondError(w, http.StatusBadRequest, "entityType and entityId are required", nil)
		return
	}

	signals := recommend.Signals{
		TenantID:         req.TenantID,
		EntityType:       req.EntityType,
		EntityID:         req.EntityID,
		OverdueTasks:     req.OverdueTasks,
		PendingApprovals: req.PendingApprovals,
		EvidenceDueSoon:  req.EvidenceDueSoon,
		Now:              time.Now(),
	}

	ref := req.ref()
	if rec, err := s.scores.Latest(ref, scoring.TypePCI); err == nil {
		var result scoring.PCIResult
		if json.Unmarshal([]byte(rec.BreakdownJSON), &result) == nil {
			signals.PCI = &result
		}
	}
	if rec, err := s.scores.Latest(ref, scoring.TypeEngagement); err == nil {
		var result scoring.EngagementResult
		if json.Unmarshal([]byte(rec.BreakdownJSON), &result) == nil {
			signals.Engagement = &result
		}
	}
	if rec, err := s.scores.Latest(ref, scoring.TypeMotivation); err == nil {
		var result scoring.MotivationResult
		if json.Unmarshal([]byte(rec.BreakdownJSON), &result) == nil {
			signals.Motivation = &result
		}
	}
	if rec, err := s.scores.Latest(ref, scoring.TypeConfidence); err == nil {
		var result scoring.ConfidenceResult
		if json.Unmarshal([]byte(rec.BreakdownJSON), &result) == nil {
			signals.Confidence = &result
		}
	}

	generated := recommend.Generate(signals)
	out := make([]RecommendationResponse, 0, len(generated))
	for i := range generated {
		if err := s.recs.Add(generated[i]); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store recommendation", err)
			return
		}
		out = append(out, toRecommendationResponse(&generated[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"recommendations": out})
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType := q.Get("entityType")
	entityID := q.Get("entityId")
	if entityType == "" || entityID == "" {
		respondError(w, http.StatusBadRequest, "entityType and entityId are required", nil)
		return
	}
	var tenantID *string
	if t := q.Get("tenantId"); t != "" {
		tenantID = &t
	}

	recs, err := s.recs.ListPending(tenantID, entityType, entityID, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list recommendations", err)
		return
	}
	out := make([]RecommendationResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toRecommendationResponse(&recs[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"recommendations": out})
}

func (s *Server) handleRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	var req RecommendationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := s.recs.UpdateStatus(chi.URLParam(r, "recommendationId"),
		recommend.Status(req.Status), req.ActedBy, time.Now())
	if err != nil {
		var ste *recommend.StateTransitionError
		switch {
		case errors.As(err, &ste):
			respondError(w, http.StatusConflict, "illegal status transition", err)
		case errors.Is(err, recommend.ErrNotFound):
			respondError(w, http.StatusNotFound, "recommendation not found", nil)
		default:
			respondError(w, http.StatusInternalServerError, "failed to update recommendation", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, toRecommendationResponse(rec))
}

// sweepLoop periodically materializes expired pending recommendations.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			swept, err := s.recs.Sweep(now)
			if err != nil {
				logger.Error("recommendation sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				logger.Info("expired recommendations swept", "count", swept)
			}
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go server.sweepLoop(sweepCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancelSweep()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := server.dispatcher.Shutdown(ctx); err != nil {
		logger.Error("dispatcher shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
