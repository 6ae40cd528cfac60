package routes

import (
	"net/http"

	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func SearchHandler(c echo.Context) error {
	type searchParams struct {
		Query string `query:"q" validate:"required"`
		Kind  string `query:"type" validate:"omitempty,oneof=company person government"`
		Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
	}

	type searchResponse struct {
		Query   string              `json:"query"`
		Count   int                 `json:"count"`
		Results []store.SearchMatch `json:"results"`
	}

	params := new(searchParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Limit == 0 {
		params.Limit = 20
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	matches, err := st.Search(ctx, params.Query, common.EntityKind(params.Kind), params.Limit)
	if err != nil {
		logger.Error("Failed to search entities", "q", params.Query, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if matches == nil {
		matches = []store.SearchMatch{}
	}

	return c.JSON(http.StatusOK, searchResponse{
		Query:   params.Query,
		Count:   len(matches),
		Results: matches,
	})
}
