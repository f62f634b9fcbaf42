package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/policy/engine"
	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/ratelimit"
	"dmkit-hq/dmkit/pkg/security/auth"
	"dmkit-hq/dmkit/pkg/telemetry/logging"
)

// LogIDPrefix marks log ids issued by this service.
const LogIDPrefix = "dmkit_"

const defaultProduct = "default"

// ResolveHandler serves POST /v1/dm/resolve.
type ResolveHandler struct {
	resolver     Resolver
	journal      Journal
	remote       model.RemoteCaller
	limiter      *ratelimit.Limiter
	rejects      RejectObserver
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewResolveHandler creates the resolve endpoint from opts.
func NewResolveHandler(opts Options, maxBodyBytes int64, logger *slog.Logger) *ResolveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxBodyBytes
	}
	return &ResolveHandler{
		resolver:     opts.Resolver,
		journal:      opts.Journal,
		remote:       opts.Remote,
		limiter:      opts.Limiter,
		rejects:      opts.Rejects,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (h *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ResolveResponse{ErrorCode: CodeError, ErrorMsg: "Method not allowed"})
		return
	}

	var req ResolveRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn("Failed to decode resolve request", "error", err)
		writeJSON(w, status, ResolveResponse{ErrorCode: CodeError, ErrorMsg: MsgInvalidBody})
		return
	}

	resp, status, retryAfter := h.handle(r.Context(), &req)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	writeJSON(w, status, resp)
}

// Handle resolves a decoded request. It is the transport-independent part
// of ServeHTTP.
func (h *ResolveHandler) Handle(ctx context.Context, req *ResolveRequest) ResolveResponse {
	resp, _, _ := h.handle(ctx, req)
	return resp
}

// handle returns the reply, its HTTP status and, for rate rejections, the
// suggested retry delay. Resolve failures are reported in the body with
// status 200.
func (h *ResolveHandler) handle(ctx context.Context, req *ResolveRequest) (ResolveResponse, int, time.Duration) {
	logID := LogIDPrefix + req.LogID
	if req.LogID == "" {
		logID = LogIDPrefix + uuid.New().String()
	}
	if req.Query == nil {
		h.logger.Warn("Missing query", "log_id", logID)
		return ResolveResponse{ErrorCode: CodeError, ErrorMsg: MsgMissingQuery, LogID: logID}, http.StatusOK, 0
	}

	product := req.Product
	if product == "" {
		product = req.Params["product"]
	}
	if product == "" {
		product = defaultProduct
	}

	ctx = logging.WithProduct(logging.WithLogID(ctx, logID), product)

	if key := auth.FromContext(ctx); key != nil && !key.Allows(product) {
		h.logger.WarnContext(ctx, "API key not allowed for product", "key_name", key.Name)
		h.reject(reasonForbidden)
		return ResolveResponse{ErrorCode: CodeError, ErrorMsg: MsgForbidden, LogID: logID}, http.StatusForbidden, 0
	}
	if h.limiter != nil {
		decision, release := h.limiter.Admit(product)
		if !decision.Allowed {
			h.logger.WarnContext(ctx, "Resolve request rejected", "reason", decision.Reason)
			h.reject(decision.Reason)
			return ResolveResponse{ErrorCode: CodeError, ErrorMsg: MsgRateLimited, LogID: logID}, http.StatusTooManyRequests, decision.RetryAfter
		}
		defer release()
	}
	rc := &model.RequestContext{LogID: logID, Params: req.Params, Remote: h.remote}

	start := time.Now()
	out, err := h.resolver.Resolve(ctx, product, model.NewQUSet(req.QU...), req.Session, rc)
	duration := time.Since(start)

	if err == nil {
		if _, ok := out.Meta.Get("query"); !ok {
			out.Meta = append(out.Meta, model.KV{Key: "query", Value: *req.Query})
		}
	}
	h.record(product, logID, out, err, duration)

	if err != nil {
		h.logger.InfoContext(ctx, "Policy resolve failed", "error", err)
		return ResolveResponse{ErrorCode: CodeError, ErrorMsg: MsgResolveFailed, LogID: logID}, http.StatusOK, 0
	}
	return ResolveResponse{ErrorCode: CodeOK, LogID: logID, Result: out}, http.StatusOK, 0
}

const reasonForbidden = "forbidden"

func (h *ResolveHandler) reject(reason string) {
	if h.rejects != nil {
		h.rejects.ObserveReject(reason)
	}
}

func (h *ResolveHandler) record(product, logID string, out *model.ResolvedOutput, err error, d time.Duration) {
	if h.journal == nil {
		return
	}
	rec := h.journal.NewTurnRecord(product, logID, engine.OutcomeOf(err), out, err, d)
	if err := h.journal.Record(rec); err != nil {
		h.logger.Debug("Turn not journaled", "log_id", logID, "error", err)
	}
}

// Journal accepts turn records. *recorder.Recorder implements it.
type Journal interface {
	NewTurnRecord(product, logID, outcome string, out *model.ResolvedOutput, resolveErr error, duration time.Duration) *evidence.TurnRecord
	Record(rec *evidence.TurnRecord) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
