package temporal

import (
	"context"
	"fmt"
	"path/filepath"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker serving the ingestion
// workflow on taskQueue.
func StartWorker(c client.Client, taskQueue string, acts *Activities) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// NewIngestInput builds the workflow input for path. The worker may run in
// another directory, so path is made absolute on the caller's side.
func NewIngestInput(path, collection string) (IngestInput, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return IngestInput{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	return IngestInput{Path: abs, Collection: collection}, nil
}

// WorkflowID names the ingestion of one file into one collection, so a second
// request for the same pair joins the running execution.
func WorkflowID(input IngestInput) string {
	return fmt.Sprintf("gloombot-ingest-%s-%s", input.Collection, filepath.Base(input.Path))
}

// RunIngest starts IngestWorkflow on taskQueue and waits for its result.
func RunIngest(ctx context.Context, c client.Client, taskQueue string, input IngestInput) (*IngestOutput, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(input),
		TaskQueue: taskQueue,
	}, IngestWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("start ingest workflow: %w", err)
	}

	var out IngestOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("ingest workflow %s: %w", run.GetID(), err)
	}
	return &out, nil
}
