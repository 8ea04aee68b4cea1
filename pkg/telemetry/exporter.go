package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fora-lang/cumulus/pkg/utils"
)

// loggingExporter implements sdktrace.SpanExporter by writing one summary
// line per finished span through a Logger. It exists so the core can carry
// span instrumentation without taking on an OTLP network client, which
// would duplicate the wire-transport concerns the scheduler core leaves to
// external collaborators.
//
// It also times its own batches with a Timer, separate from the spans it
// exports: that gives operators a phase-by-phase breakdown of exporter
// overhead itself (logged on Shutdown), which a span duration alone can't,
// since the exporter isn't itself wrapped in a span.
type loggingExporter struct {
	logger utils.Logger
	timer  *utils.Timer
	batch  atomic.Int64
}

func newLoggingExporter(logger utils.Logger) *loggingExporter {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &loggingExporter{
		logger: logger,
		timer:  utils.NewTimer("telemetry-export", utils.WithLogger(logger)),
	}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *loggingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	n := e.batch.Add(1)
	pt := e.timer.Start(fmt.Sprintf("batch-%d", n))
	defer pt.Stop()

	for _, s := range spans {
		e.logger.Info("span %s dur=%s attrs=%s",
			s.Name(), s.EndTime().Sub(s.StartTime()), fmt.Sprint(s.Attributes()))
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. It logs a timing summary of
// every batch this exporter processed before returning.
func (e *loggingExporter) Shutdown(_ context.Context) error {
	e.timer.PrintSummary()
	return nil
}
