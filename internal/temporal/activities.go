package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	"github.com/efebarandurmaz/gloombot/internal/ingest"
	"github.com/efebarandurmaz/gloombot/internal/metrics"
)

// Activities holds the shared resources the worker's activities run with.
type Activities struct {
	Ingester *ingest.Ingester
}

// IngestActivity builds the collection from the PDF at input.Path.
func (a *Activities) IngestActivity(ctx context.Context, input IngestInput) (*metrics.IngestReport, error) {
	if a.Ingester == nil {
		return nil, errors.New("ingest activity: no ingester configured")
	}

	activity.GetLogger(ctx).Info("ingesting", "path", input.Path, "collection", input.Collection)

	_, report, err := a.Ingester.CreateCollection(ctx, input.Path, input.Collection)
	if err != nil {
		return nil, err
	}
	return report, nil
}
