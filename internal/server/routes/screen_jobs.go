package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cleargate-io/cleargate/internal/queue"
	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/internal/storage"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/screening"
	pgstore "github.com/cleargate-io/cleargate/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateScreenJobHandler accepts a large batch, persists it as a job, and
// enqueues it for the worker.
func CreateScreenJobHandler(c echo.Context) error {
	type createJobBody struct {
		Names []string `json:"names" validate:"required,min=1,max=10000,dive,max=500"`
	}

	type createJobResponse struct {
		Message string             `json:"message"`
		Job     *pgstore.ScreenJob `json:"job,omitempty"`
	}

	data := new(createJobBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createJobResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createJobResponse{
			Message: "Invalid request body",
		})
	}

	names := screening.NormalizeNames(data.Names)
	if len(names) == 0 {
		return c.JSON(http.StatusBadRequest, createJobResponse{
			Message: "No names provided",
		})
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createJobResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	jobs := c.(*middleware.AppContext).App.Jobs

	job, err := jobs.CreateScreenJob(ctx, jobID, names)
	if err != nil {
		logger.Error("Failed to create screening job", "err", err)
		return c.JSON(http.StatusInternalServerError, createJobResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.ScreenJobMessage{JobID: job.ID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createJobResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	err = queue.PublishFIFO(ch, queue.ScreenQueue, msg)
	if err != nil {
		logger.Error("Failed to publish screening job", "job", job.ID, "err", err)
		failErr := jobs.FailScreenJob(ctx, job.ID, "failed to enqueue job")
		if failErr != nil {
			logger.Error("Failed to fail screening job", "job", job.ID, "err", failErr)
		}
		return c.JSON(http.StatusInternalServerError, createJobResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createJobResponse{
		Message: "Screening job queued",
		Job:     &job,
	})
}

// GetScreenJobHandler returns a job's status and, once done, the report plus
// a presigned download link for the CSV export.
func GetScreenJobHandler(c echo.Context) error {
	type getJobParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getJobResponse struct {
		Job       pgstore.ScreenJob `json:"job"`
		ReportURL string            `json:"report_url,omitempty"`
	}

	params := new(getJobParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	jobs := c.(*middleware.AppContext).App.Jobs

	job, err := jobs.GetScreenJob(ctx, params.ID)
	if errors.Is(err, pgstore.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Job not found"})
	}
	if err != nil {
		logger.Error("Failed to get screening job", "job", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	resp := getJobResponse{Job: job}
	if job.Status == pgstore.JobDone && job.ReportKey != "" {
		s3Client := c.(*middleware.AppContext).App.S3
		url, err := storage.GenerateDownloadLink(ctx, s3Client, job.ReportKey)
		if err != nil {
			logger.Error("Failed to presign report link", "job", job.ID, "err", err)
		} else {
			resp.ReportURL = url
		}
	}

	return c.JSON(http.StatusOK, resp)
}
