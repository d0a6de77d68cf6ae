package mergedcompany

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/mergedcompany"
	runrepo "github.com/Ramsey-B/clover/internal/repositories/run"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers merged company routes
func Register(g *echo.Group) {
	g.GET("", ListMergedCompanies)
	g.GET("/:id", GetMergedCompany)
}

// ListMergedCompanies lists merged company cards, optionally scoped to a run.
// Without run_id the latest completed run's cards are returned.
func ListMergedCompanies(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	runID := c.QueryParam("run_id")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	// Cards are a per-run artifact. An unscoped listing would mix runs, so
	// no run_id means the latest completed run.
	if runID == "" {
		ctx2, runs, err := ectoinject.GetContext[*runrepo.Repository](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
		}
		ctx = ctx2
		latest, err := runs.LatestCompleted(ctx, tenantID)
		if err != nil {
			return err
		}
		if latest == nil {
			return c.JSON(http.StatusOK, &models.MergedCompanyListResponse{
				Items: []models.MergedCompany{},
			})
		}
		runID = latest.ID
	}

	ctx, repo, err := ectoinject.GetContext[*mergedcompany.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	cards, err := repo.List(ctx, tenantID, runID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cards)
}

// GetMergedCompany gets a merged company card by ID
func GetMergedCompany(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergedcompany.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	card, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, card)
}
