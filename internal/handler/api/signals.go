package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	icache "SigTrail/internal/service/cache"
	imetrics "SigTrail/internal/service/metrics"
	"SigTrail/internal/service/ratelimit"
	"SigTrail/internal/usecase"
	xhttp "SigTrail/pkg/http"
	xlogger "SigTrail/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsHandler exposes the signal lifecycle over HTTP.
type SignalsHandler struct {
	logger    *xlogger.Logger
	store     drepo.SignalStore
	tracker   *usecase.SignalTracker
	evaluator *usecase.OutcomeEvaluator
	insights  *usecase.InsightsAggregator
	snapshots *usecase.SnapshotBuilder
	scorer    *usecase.ConfluenceScorer

	insightsCache icache.BytesCache
	insightsTTL   time.Duration
	limiter       *ratelimit.Limiter
}

// HandlerOption configures SignalsHandler.
type HandlerOption func(*SignalsHandler)

// WithInsightsCache caches insights reports for ttl.
func WithInsightsCache(c icache.BytesCache, ttl time.Duration) HandlerOption {
	return func(h *SignalsHandler) {
		h.insightsCache = c
		if ttl > 0 {
			h.insightsTTL = ttl
		}
	}
}

func NewSignalsHandler(
	logger *xlogger.Logger,
	store drepo.SignalStore,
	tracker *usecase.SignalTracker,
	evaluator *usecase.OutcomeEvaluator,
	insights *usecase.InsightsAggregator,
	snapshots *usecase.SnapshotBuilder,
	opts ...HandlerOption,
) *SignalsHandler {
	h := &SignalsHandler{
		logger:      logger,
		store:       store,
		tracker:     tracker,
		evaluator:   evaluator,
		insights:    insights,
		snapshots:   snapshots,
		scorer:      usecase.NewConfluenceScorer(),
		insightsTTL: 60 * time.Second,
		limiter:     ratelimit.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	imetrics.Register()
	return h
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signals", h.Track)
	g.GET("/signals", h.List)
	g.GET("/signals/:id", h.Get)
	g.POST("/signals/:id/execute", h.Execute)
	g.POST("/signals/:id/evaluate", h.Evaluate)
	g.POST("/evaluations/run", h.RunBatch)
	g.GET("/insights", h.Insights)
	g.GET("/analyze", h.Analyze)
}

// Track accepts an externally produced signal into tracking.
func (h *SignalsHandler) Track(c echo.Context) error {
	start := time.Now()
	req := &models.TrackSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s := &models.Signal{
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		Direction:  models.Direction(req.Direction),
		Confidence: req.Confidence,
		EntryPrice: req.EntryPrice,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		Reasoning:  req.Reasoning,
	}

	// Manual tracks carry no snapshot, so confluence derives from the stated
	// confidence alone.
	strength := req.Confidence / 100
	conf := models.Confluence{
		Score:      strength * float64(s.DirectionSign()),
		Level:      models.LevelForScore(strength),
		Supporting: []string{},
		Strength:   strength,
	}

	id, err := h.tracker.Track(c.Request().Context(), s, conf)
	if err != nil {
		return h.fail(c, "track", err)
	}
	imetrics.APILatency.WithLabelValues("track").Observe(time.Since(start).Seconds())
	return xhttp.CreatedResponse(c, map[string]string{"id": id})
}

// List returns tracked signals, newest first.
func (h *SignalsHandler) List(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.store.List(c.Request().Context(), drepo.SignalFilter{
		Symbol:       req.Symbol,
		Timeframe:    req.Timeframe,
		State:        models.State(req.State),
		CreatedAfter: xhttp.ParseTimeDefault(c.QueryParam("created_after"), time.Time{}),
		Limit:        req.Limit,
	})
	if err != nil {
		return h.fail(c, "list", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Get returns one signal by id.
func (h *SignalsHandler) Get(c echo.Context) error {
	s, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get", err)
	}
	return xhttp.SuccessResponse(c, s)
}

// Execute records a fill against a pending signal.
func (h *SignalsHandler) Execute(c echo.Context) error {
	req := &models.ExecuteSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s, err := h.tracker.MarkExecuted(c.Request().Context(), c.Param("id"), req.Price, req.Source)
	if err != nil {
		return h.fail(c, "execute", err)
	}
	return xhttp.SuccessResponse(c, s)
}

// Evaluate resolves the outcome of a single signal against price history.
func (h *SignalsHandler) Evaluate(c echo.Context) error {
	start := time.Now()
	res, err := h.evaluator.Evaluate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "evaluate", err)
	}
	imetrics.APILatency.WithLabelValues("evaluate").Observe(time.Since(start).Seconds())
	return xhttp.SuccessResponse(c, res)
}

// RunBatch evaluates eligible signals and returns the batch report.
func (h *SignalsHandler) RunBatch(c echo.Context) error {
	req := &models.EvaluateBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.evaluator.EvaluateBatch(c.Request().Context(), req.MaxSignals)
	if err != nil {
		return h.fail(c, "run_batch", err)
	}
	return xhttp.SuccessResponse(c, report)
}

// Insights aggregates evaluated outcomes into a performance report.
func (h *SignalsHandler) Insights(c echo.Context) error {
	req := &models.InsightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := fmt.Sprintf("insights:%d", req.PeriodDays)
	if h.insightsCache != nil {
		if b, ok, err := h.insightsCache.GetBytes(cacheKey); err == nil && ok {
			var cached models.InsightsReport
			if err := json.Unmarshal(b, &cached); err == nil {
				c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
				return xhttp.SuccessResponse(c, cached)
			}
		}
	}

	report, err := h.insights.Insights(c.Request().Context(), req.PeriodDays)
	if err != nil {
		return h.fail(c, "insights", err)
	}

	if h.insightsCache != nil {
		if b, err := json.Marshal(report); err == nil {
			_ = h.insightsCache.SetBytes(cacheKey, b, h.insightsTTL)
		}
	}
	return xhttp.SuccessResponse(c, report)
}

type analyzeResponse struct {
	Snapshot   *models.IndicatorSnapshot `json:"snapshot"`
	Confluence models.Confluence         `json:"confluence"`
	Signal     *models.Signal            `json:"signal,omitempty"`
	TrackedID  string                    `json:"tracked_id,omitempty"`
}

// Analyze computes indicators and confluence for a symbol, optionally
// deriving and tracking a signal when confluence is actionable.
func (h *SignalsHandler) Analyze(c echo.Context) error {
	start := time.Now()
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// Snapshot construction pulls candle history; one request per symbol per
	// second is plenty.
	if !h.limiter.Allow("analyze:"+strings.ToUpper(req.Symbol), 5, 1) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many analyze requests for this symbol", 429))
	}

	tf := drepo.NormalizeTimeframe(req.Timeframe)
	snap, bars, err := h.snapshots.Build(c.Request().Context(), req.Symbol, tf)
	if err != nil {
		return h.fail(c, "analyze", err)
	}

	conf := h.scorer.Score(snap)
	resp := &analyzeResponse{Snapshot: snap, Confluence: conf}

	if derived := usecase.DeriveSignal(snap, conf, bars); derived != nil {
		resp.Signal = derived
		if req.Track {
			id, err := h.tracker.Track(c.Request().Context(), derived, conf)
			if err != nil {
				return h.fail(c, "analyze", err)
			}
			resp.TrackedID = id
		}
	}

	imetrics.APILatency.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	return xhttp.SuccessResponse(c, resp)
}

func (h *SignalsHandler) fail(c echo.Context, endpoint string, err error) error {
	imetrics.APIErrors.WithLabelValues(endpoint).Inc()

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_VALIDATION",
			Field:   verr.Field,
			Message: verr.Reason,
		}})
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("signal not found").WithError(err))
	case errors.Is(err, models.ErrAlreadyEvaluated):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("signal already evaluated").WithError(err))
	case errors.Is(err, models.ErrInvalidTransition):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("invalid state transition").WithError(err))
	case errors.Is(err, models.ErrMarketDataNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no market data for symbol").WithError(err))
	case errors.Is(err, models.ErrMarketDataUnavailable):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UPSTREAM", "", "market data unavailable", 503).WithError(err))
	case errors.Is(err, models.ErrOutcomeUnresolved):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("outcome not yet resolvable").WithError(err))
	default:
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
