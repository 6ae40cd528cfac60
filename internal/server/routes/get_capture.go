package routes

import (
	"errors"
	"net/http"

	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/pkg/capture"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/risk"
	"github.com/cleargate-io/cleargate/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetEntityCaptureHandler runs the ownership capture resolution for one
// entity and returns the full risk assessment.
func GetEntityCaptureHandler(c echo.Context) error {
	type captureParams struct {
		ID       string `param:"id" validate:"required"`
		MaxDepth int    `query:"max_depth" validate:"omitempty,min=1,max=20"`
	}

	params := new(captureParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	ent, err := st.GetEntity(ctx, params.ID)
	if errors.Is(err, store.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}
	if err != nil {
		logger.Error("Failed to get entity", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	opts := []capture.Option{}
	if params.MaxDepth > 0 {
		opts = append(opts, capture.WithMaxDepth(params.MaxDepth))
	}
	resolver := capture.NewResolver(st, opts...)

	capRes, err := resolver.Resolve(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to resolve capture", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	assessment := risk.NewAggregator(st).Assess(ctx, ent, capRes)

	return c.JSON(http.StatusOK, assessment)
}
