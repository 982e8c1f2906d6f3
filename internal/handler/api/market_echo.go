package api

import (
	"context"
	"net/http"
	"time"

	models "DeltaStream/internal/domain/models"
	domrepo "DeltaStream/internal/domain/repository"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/ratelimit"
	"DeltaStream/internal/usecase"
	xhttp "DeltaStream/pkg/http"
	xlogger "DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"

	"github.com/labstack/echo/v4"
)

// DeadLetterManager is the slice of the queue the ops surface needs.
type DeadLetterManager interface {
	DeadLetterCount(ctx context.Context) (int64, error)
	DeadLetterEntries(ctx context.Context, start, stop int64) ([]queue.DeadLetterEntry, error)
	ReplayDeadLetters(ctx context.Context, limit int) (int, error)
}

// MarketEchoHandler exposes read models, chain history and the
// dead-letter controls over HTTP.
type MarketEchoHandler struct {
	logger  *xlogger.Logger
	gw      *gateway.Gateway
	chains  domrepo.ChainStore
	dlq     DeadLetterManager
	limiter *ratelimit.Limiter
}

func NewMarketEchoHandler(logger *xlogger.Logger, gw *gateway.Gateway, chains domrepo.ChainStore, dlq DeadLetterManager) *MarketEchoHandler {
	return &MarketEchoHandler{logger: logger, gw: gw, chains: chains, dlq: dlq, limiter: ratelimit.New()}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/chains", h.Chains)
	g.GET("/latest/chain", h.LatestChain)
	g.GET("/ohlc", h.OHLC)
	g.GET("/surface", h.Surface)
	g.GET("/dlq", h.DLQCount)
	g.GET("/dlq/entries", h.DLQEntries)
	g.POST("/dlq/replay", h.DLQReplay)
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	if err := h.gw.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Chains serves enriched chain history from the durable store.
func (h *MarketEchoHandler) Chains(c echo.Context) error {
	req := &models.ChainsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(req.To, now)

	rows, err := h.chains.Query(c.Request().Context(), req.Product, from, to, req.Limit)
	if err != nil {
		h.logger.Error("chain history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketEchoHandler) LatestChain(c echo.Context) error {
	req := &models.LatestChainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var chain models.EnrichedChain
	if err := h.gw.Cache.Get(c.Request().Context(), usecase.ChainKey(req.Product, req.Expiry), &chain); err != nil {
		return xhttp.NotFoundResponse(c, map[string]string{"error": "no recent chain"})
	}
	return xhttp.SuccessResponse(c, chain)
}

func (h *MarketEchoHandler) OHLC(c echo.Context) error {
	req := &models.OHLCRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var window models.OHLCWindow
	if err := h.gw.Cache.Get(c.Request().Context(), usecase.OHLCKey(req.Product, req.Window), &window); err != nil {
		return xhttp.NotFoundResponse(c, map[string]string{"error": "no window for product"})
	}
	return xhttp.SuccessResponse(c, window)
}

func (h *MarketEchoHandler) Surface(c echo.Context) error {
	req := &models.SurfaceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var surface models.VolatilitySurface
	if err := h.gw.Cache.Get(c.Request().Context(), usecase.SurfaceKey(req.Product), &surface); err != nil {
		return xhttp.NotFoundResponse(c, map[string]string{"error": "no surface for product"})
	}
	return xhttp.SuccessResponse(c, surface)
}

func (h *MarketEchoHandler) DLQCount(c echo.Context) error {
	n, err := h.dlq.DeadLetterCount(c.Request().Context())
	if err != nil {
		h.logger.Error("dlq count failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]int64{"count": n})
}

func (h *MarketEchoHandler) DLQEntries(c echo.Context) error {
	req := &models.DLQEntriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	entries, err := h.dlq.DeadLetterEntries(c.Request().Context(), req.Start, req.Stop)
	if err != nil {
		h.logger.Error("dlq entries failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

// DLQReplay re-enqueues dead letters as fresh jobs. Replayed jobs pass
// the idempotency guard again, so replaying already-processed work is
// harmless.
func (h *MarketEchoHandler) DLQReplay(c echo.Context) error {
	if !h.limiter.Allow("dlq_replay:"+c.RealIP(), 3, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, map[string]string{"error": "replay rate limited"})
	}
	req := &models.DLQReplayRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	n, err := h.dlq.ReplayDeadLetters(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("dlq replay failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("dead letters replayed", xlogger.Int("count", n))
	return xhttp.SuccessResponse(c, map[string]int{"replayed": n})
}

var _ xhttp.Handler = (*MarketEchoHandler)(nil)
