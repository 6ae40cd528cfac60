package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/internal/util"
	"github.com/cleargate-io/cleargate/pkg/screening"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// ScreenHandler screens a batch of names synchronously. Batches bigger than
// the synchronous limit belong on the job queue.
func ScreenHandler(c echo.Context) error {
	type screenBody struct {
		Names      []string `json:"names" validate:"required,min=1,max=100,dive,max=500"`
		TimeoutSec int      `json:"timeout_sec" validate:"omitempty,min=1,max=300"`
	}

	data := new(screenBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	names := screening.NormalizeNames(data.Names)
	if len(names) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No names provided"})
	}

	timeout := time.Duration(util.GetEnvInt("SCREEN_TIMEOUT_SEC", 60)) * time.Second
	if data.TimeoutSec > 0 {
		timeout = time.Duration(data.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	st := c.(*middleware.AppContext).App.Store
	screener := screening.NewScreener(st)

	report := screener.Screen(ctx, names)
	return c.JSON(http.StatusOK, report)
}

// QuickScreenHandler screens a single name and returns its result directly.
func QuickScreenHandler(c echo.Context) error {
	type quickScreenBody struct {
		Name string `json:"name" validate:"required,max=500"`
	}

	data := new(quickScreenBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	names := screening.NormalizeNames([]string{data.Name})
	if len(names) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No name provided"})
	}

	timeout := time.Duration(util.GetEnvInt("SCREEN_TIMEOUT_SEC", 60)) * time.Second
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	st := c.(*middleware.AppContext).App.Store
	screener := screening.NewScreener(st)

	report := screener.Screen(ctx, names)
	return c.JSON(http.StatusOK, report.Results[0])
}
