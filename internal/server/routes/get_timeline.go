package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"
	"github.com/cleargate-io/cleargate/pkg/timeline"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetEntityTimelineHandler returns an entity's event history together with
// the detected evasion patterns.
func GetEntityTimelineHandler(c echo.Context) error {
	type timelineParams struct {
		ID         string `param:"id" validate:"required"`
		WindowDays int    `query:"window_days" validate:"omitempty,min=1,max=3650"`
	}

	type timelineResponse struct {
		EntityID string                 `json:"entity_id"`
		Events   []common.TimelineEvent `json:"events"`
		Patterns []timeline.Pattern     `json:"patterns"`
	}

	params := new(timelineParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	events, err := st.Events(ctx, params.ID)
	if errors.Is(err, store.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}
	if err != nil {
		logger.Error("Failed to get events", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	opts := []timeline.Option{}
	if params.WindowDays > 0 {
		opts = append(opts, timeline.WithWindow(time.Duration(params.WindowDays)*24*time.Hour))
	}
	analyzer := timeline.NewAnalyzer(st, opts...)

	patterns, err := analyzer.DetectPatterns(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to detect patterns", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if events == nil {
		events = []common.TimelineEvent{}
	}
	if patterns == nil {
		patterns = []timeline.Pattern{}
	}

	return c.JSON(http.StatusOK, timelineResponse{
		EntityID: params.ID,
		Events:   events,
		Patterns: patterns,
	})
}
