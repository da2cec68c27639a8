package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/agent"
	"github.com/vnmchuo/puqee/internal/agent/chatbot"
	"github.com/vnmchuo/puqee/internal/gateway"
	"github.com/vnmchuo/puqee/internal/provider"
	"github.com/vnmchuo/puqee/internal/redact"
	"github.com/vnmchuo/puqee/internal/telemetry"
	"github.com/vnmchuo/puqee/pkg/ratelimit"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	gateway *gateway.Gateway
	agents  *agent.Manager
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewHandler wires the HTTP surface. limiter may be nil to disable rate
// limiting.
func NewHandler(gw *gateway.Gateway, agents *agent.Manager, limiter *ratelimit.Limiter, tracer trace.Tracer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gateway: gw,
		agents:  agents,
		limiter: limiter,
		tracer:  tracer,
		logger:  logger.With(zap.String("component", "api")),
	}
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

type createAgentRequest struct {
	AgentID     string `json:"agent_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type generateRequest struct {
	Messages    []provider.Message `json:"messages"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	providers := h.gateway.Providers()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    time.Now().UTC(),
		"agents_count": h.agents.Status().ActiveAgents,
		"services": map[string]any{
			"llm_gateway":      len(providers) > 0,
			"providers":        providers,
			"default_provider": h.gateway.DefaultProvider(),
		},
	})
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Puqee",
		"version":     telemetry.Version,
		"description": "General purpose agent framework with a multi-provider LLM gateway",
		"agent_types": h.agents.RegisteredTypes(),
		"endpoints": map[string]string{
			"health":    "GET /health",
			"chat":      "POST /chat",
			"agents":    "GET|POST /agents",
			"agent":     "GET|DELETE /agents/{id}",
			"session":   "GET|DELETE /agents/{id}/sessions/{sid}",
			"generate":  "POST /v1/generate",
			"providers": "GET /v1/providers",
			"metrics":   "GET /metrics",
		},
	})
}

// HandleChat talks to the default chatbot.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, chatbot.DefaultAgentID)
}

func (h *Handler) HandleAgentChat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, agentID string) {
	if !h.allow(w, r) {
		return
	}

	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "api.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("session_id", req.SessionID),
		attribute.String("request_id", requestID(r)),
	)

	out, err := h.agents.Process(ctx, agentID, agent.Input{Message: req.Message, SessionID: req.SessionID, Context: req.Context})
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, agent.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, redact.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": h.agents.ActiveAgents(),
		"status": h.agents.Status(),
	})
}

func (h *Handler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = chatbot.TypeName
	}
	if req.AgentID == "" {
		req.AgentID = uuid.New().String()
	}

	a, err := h.agents.CreateAgent(r.Context(), req.Type, req.AgentID, req.Name, req.Description)
	switch {
	case errors.Is(err, agent.ErrUnknownType):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, agent.ErrAgentExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a.Info())
}

func (h *Handler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	info, ok := h.agents.AgentInfo(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.agents.Get(id); !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if !h.agents.Remove(r.Context(), id) {
		writeError(w, http.StatusInternalServerError, "failed to remove agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "agent_id": id})
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversational(w, r)
	if !ok {
		return
	}
	sid := chi.URLParam(r, "sid")
	writeJSON(w, http.StatusOK, map[string]any{
		"info":     conv.ConversationInfo(sid),
		"messages": conv.ExportConversation(sid),
	})
}

func (h *Handler) HandleClearSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversational(w, r)
	if !ok {
		return
	}
	sid := chi.URLParam(r, "sid")
	if !conv.ClearConversation(sid) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "session_id": sid})
}

func (h *Handler) conversational(w http.ResponseWriter, r *http.Request) (agent.Conversational, bool) {
	a, ok := h.agents.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return nil, false
	}
	conv, ok := a.(agent.Conversational)
	if !ok {
		writeError(w, http.StatusBadRequest, "agent does not keep conversations")
		return nil, false
	}
	return conv, true
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req generateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reqID := requestID(r)
	ctx, span := h.tracer.Start(r.Context(), "api.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", reqID),
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model),
	)

	resp, err := h.gateway.Generate(ctx, req.Messages, req.Provider, provider.Options{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		h.writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       reqID,
		"content":  resp.Content,
		"model":    resp.Model,
		"provider": resp.Provider,
		"usage":    resp.Usage,
		"metadata": resp.Metadata,
	})
}

func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	names := h.gateway.Providers()
	infos := make([]gateway.ProviderInfo, 0, len(names))
	for _, name := range names {
		info, err := h.gateway.ProviderInfo(name)
		if err != nil {
			// Unregistered concurrently.
			continue
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers":        infos,
		"default_provider": h.gateway.DefaultProvider(),
	})
}

func (h *Handler) writeGatewayError(w http.ResponseWriter, err error) {
	var (
		cfgErr *gateway.ConfigurationError
		nfErr  *gateway.ProviderNotFoundError
		gwErr  *gateway.GatewayError
	)
	switch {
	case errors.Is(err, gateway.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.As(err, &nfErr):
		writeError(w, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, redact.Error(gwErr))
	default:
		// Cancelled by the client or a deadline.
		h.logger.Info("generate aborted", zap.String("error", redact.Error(err)))
		writeError(w, http.StatusServiceUnavailable, redact.Error(err))
	}
}

// allow applies the per-client rate limit. A limiter failure lets the
// request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	client := clientID(r)
	ok, err := h.limiter.Allow(r.Context(), client)
	if err != nil {
		h.logger.Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	if ok {
		return true
	}
	retryAfter := strconv.Itoa(int(ratelimit.Window.Seconds()))
	w.Header().Set("Retry-After", retryAfter)
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error":       "rate limit exceeded",
		"retry_after": retryAfter,
	})
	return false
}

func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
