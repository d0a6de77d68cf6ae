package graph

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"

	graphpkg "github.com/Ramsey-B/clover/pkg/graph"
)

// Handler handles graph query API endpoints
type Handler struct {
	queryService *graphpkg.QueryService
	logger       ectologger.Logger
}

// NewHandler creates a new graph handler
func NewHandler(queryService *graphpkg.QueryService, logger ectologger.Logger) *Handler {
	return &Handler{
		queryService: queryService,
		logger:       logger,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/companies/:id/network", h.GetCompanyNetwork)
}

func (h *Handler) requireQueryService(c echo.Context) (*graphpkg.QueryService, error) {
	// Prefer an explicitly provided service (useful for tests), fall back to
	// DI-from-context like the other routes.
	if h != nil && h.queryService != nil {
		return h.queryService, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.QueryService](ctx)
	if err != nil || svc == nil {
		// 503 because the graph mirror is an optional dependency.
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph query service unavailable")
	}
	return svc, nil
}

// GetCompanyNetwork returns the deals and companies reachable from a merged
// company within depth hops.
// @Summary Get a company's deal network
// @Description Walk PARTY_TO edges from a merged company up to depth hops
// @Tags Graph
// @Produce json
// @Param id path string true "Merged company ID"
// @Param depth query int false "Hops to walk (default 2, max 4)"
// @Success 200 {object} graphpkg.Network
// @Failure 404 {object} httperror.HTTPError
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/companies/{id}/network [get]
func (h *Handler) GetCompanyNetwork(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	companyID := c.Param("id")
	if companyID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "company id is required")
	}

	depth := 0
	if depthStr := c.QueryParam("depth"); depthStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("depth", &parsed).BindError(); err == nil {
			depth = parsed
		}
	}

	network, err := qs.CompanyNetwork(ctx, tenantID, companyID, depth)
	if err != nil {
		if errors.Is(err, graphpkg.ErrNotFound) {
			return httperror.NewHTTPError(http.StatusNotFound, "company not found in graph")
		}
		return err
	}

	return c.JSON(http.StatusOK, network)
}
