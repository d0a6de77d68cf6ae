package run

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/exception"
	"github.com/Ramsey-B/clover/internal/repositories/matchresult"
	runrepo "github.com/Ramsey-B/clover/internal/repositories/run"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// Register registers reconcile run routes
func Register(g *echo.Group) {
	g.POST("", ExecuteRun)
	g.GET("", ListRuns)
	g.GET("/:id", GetRun)
	g.GET("/:id/matches", ListRunMatches)
	g.GET("/:id/exceptions", ListRunExceptions)
}

// ExecuteRunRequest is the request body for executing a run
type ExecuteRunRequest struct {
	Force bool `json:"force"`
}

// ExecuteRun runs a reconciliation for the tenant and returns the completed
// run. A second request while one is active gets a 409 from the run store.
func ExecuteRun(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	var req ExecuteRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, service, err := ectoinject.GetContext[*reconcile.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := service.Execute(ctx, reconcile.RunRequest{TenantID: tenantID, Force: req.Force})
	if run != nil {
		// A failed run still has a persisted row; surface its id in the
		// error response meta.
		c.SetRequest(c.Request().WithContext(context.SetRunID(c.Request().Context(), run.ID)))
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns lists runs for the tenant, newest first
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*runrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := repo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// GetRun gets a run by ID
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*runrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRunMatches lists a run's match results. pass and min_confidence filter,
// zero means no filter.
func ListRunMatches(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	runID := c.Param("id")
	pass, _ := strconv.Atoi(c.QueryParam("pass"))
	minConfidence, _ := strconv.Atoi(c.QueryParam("min_confidence"))
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*matchresult.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	results, err := repo.ListByRun(ctx, tenantID, runID, pass, minConfidence, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, results)
}

// ListRunExceptions lists a run's exceptions, optionally filtered by kind
func ListRunExceptions(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	runID := c.Param("id")
	kind := models.ExceptionKind(c.QueryParam("kind"))
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*exception.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	exceptions, err := repo.ListByRun(ctx, tenantID, runID, kind, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, exceptions)
}
