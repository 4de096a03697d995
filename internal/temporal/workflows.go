package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/gloombot/internal/metrics"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	Path       string
	Collection string
}

// IngestOutput holds the workflow result.
type IngestOutput struct {
	Collection string
	Report     metrics.IngestReport
}

// IngestWorkflow runs one create-collection pass. The activity is attempted
// once: a failed ingestion is reported, not repeated.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	var report metrics.IngestReport
	if err := workflow.ExecuteActivity(ctx, a.IngestActivity, input).Get(ctx, &report); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", input.Path, err)
	}

	workflow.GetLogger(ctx).Info("ingestion finished",
		"collection", report.Collection, "chunks", report.Chunks, "stored", report.Stored)

	return &IngestOutput{Collection: report.Collection, Report: report}, nil
}
