package queue

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cleargate-io/cleargate/internal/storage"
	"github.com/cleargate-io/cleargate/internal/util"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/screening"
	"github.com/cleargate-io/cleargate/pkg/store"
	pgstore "github.com/cleargate-io/cleargate/pkg/store/pgx"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ScreenJobMessage is the payload published to ScreenQueue. The names live in
// the job row; the message only identifies the job.
type ScreenJobMessage struct {
	JobID string `json:"job_id"`
}

// ProcessScreenJob runs one queued screening job end to end: load, screen,
// export the CSV report to object storage, persist the outcome. A returned
// error sends the message to the retry queue, so job-level failures that
// retrying cannot fix are recorded on the job instead of returned.
func ProcessScreenJob(
	ctx context.Context,
	s3Client *s3.Client,
	jobs *pgstore.Store,
	reader store.GraphReader,
	body string,
) error {
	var msg ScreenJobMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("failed to decode screen job message: %w", err)
	}

	job, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) (pgstore.ScreenJob, error) {
		return jobs.GetScreenJob(ctx, msg.JobID)
	})
	if err != nil {
		return err
	}
	if job.Status == pgstore.JobDone || job.Status == pgstore.JobFailed {
		logger.Info("Skipping settled screening job", "job", job.ID, "status", job.Status)
		return nil
	}

	if err := jobs.MarkScreenJobRunning(ctx, job.ID); err != nil {
		return err
	}

	timeout := time.Duration(util.GetEnvInt("SCREEN_JOB_TIMEOUT_SEC", 300)) * time.Second
	screenCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	screener := screening.NewScreener(reader)
	report := screener.Screen(screenCtx, screening.NormalizeNames(job.Names))

	reportCSV, err := reportToCSV(report)
	if err != nil {
		failErr := jobs.FailScreenJob(ctx, job.ID, err.Error())
		if failErr != nil {
			return failErr
		}
		return nil
	}

	var key string
	err = util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		var putErr error
		key, putErr = storage.PutReport(ctx, s3Client, job.ID, reportCSV)
		return putErr
	})
	if err != nil {
		logger.Error("Failed to upload screening report", "job", job.ID, "err", err)
		// Keep the result even when the export upload fails.
		key = ""
	}

	if err := jobs.CompleteScreenJob(ctx, job.ID, report, key); err != nil {
		return err
	}

	logger.Info("Screening job completed",
		"job", job.ID,
		"screened", report.ScreenedCount,
		"high_risk", report.HighRiskCount,
	)
	return nil
}

// reportToCSV flattens a screening report into one row per input.
func reportToCSV(report *screening.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"input_name", "status", "matched_entity_id", "matched_name",
		"match_score", "risk_level", "captured", "flags", "details",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}

	for _, r := range report.Results {
		row := []string{
			r.InputName,
			string(r.Status),
			r.MatchedEntityID,
			r.MatchedName,
			strconv.FormatFloat(r.MatchScore, 'f', 2, 64),
			string(r.RiskLevel),
			strconv.FormatBool(r.Captured),
			strings.Join(r.Flags, ";"),
			r.Details,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush report: %w", err)
	}
	return buf.Bytes(), nil
}
