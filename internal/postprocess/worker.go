package postprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/openroads/road-extractor/internal/artifact"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/vectorize"
	"go.uber.org/zap"
)

// Worker runs the postprocessing stage: mask in, GeoJSON out.
type Worker struct {
	processor *vectorize.Processor
	artifacts artifact.Store
}

// NewWorker builds the stage worker. artifacts may be nil, in which case
// only http(s) mask references can be resolved.
func NewWorker(processor *vectorize.Processor, artifacts artifact.Store) *Worker {
	return &Worker{processor: processor, artifacts: artifacts}
}

func (w *Worker) Run(ctx context.Context, args queue.PostprocessArgs) ([]byte, error) {
	zap.S().Named("postprocess").Debugw("vectorizing mask", "task_id", args.TaskID, "mask", args.MaskURL)

	if vectorize.ParseMetadata(args.Metadata) == nil {
		return w.processor.ProcessContent(ctx, nil, args.Metadata)
	}

	if isURL(args.MaskURL) || w.artifacts == nil {
		return w.processor.Process(ctx, args.MaskURL, args.Metadata)
	}

	// a bare storage key, read it straight from the artifact store
	content, err := w.artifacts.Get(ctx, args.MaskURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorize.ErrDownload, err)
	}
	return w.processor.ProcessContent(ctx, content, args.Metadata)
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
