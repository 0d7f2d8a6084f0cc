package light

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/workerpool"
)

// Lighter выполняет пакетные задания освещения на собственном пуле.
// Снимок реестра передаётся один раз при создании и живёт всё время пула.
type Lighter struct {
	engine  *Engine
	pool    *workerpool.Pool[*Response]
	metrics *Metrics
}

// NewLighter создаёт исполнитель с заданной параллельностью
func NewLighter(engine *Engine, concurrency int, metrics *Metrics) *Lighter {
	return &Lighter{
		engine:  engine,
		pool:    workerpool.New[*Response]("light", concurrency),
		metrics: metrics,
	}
}

// Engine движок исполнителя
func (l *Lighter) Engine() *Engine { return l.engine }

// Submit ставит задание в пул. Пустой JobID заполняется UUID.
func (l *Lighter) Submit(ctx context.Context, req *Request) workerpool.Future[*Response] {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	return l.pool.Queue(func() (*Response, error) {
		_, span := otel.Tracer("voxel-light/light").Start(ctx, "light.batch")
		defer span.End()
		span.SetAttributes(
			attribute.String("job.id", req.JobID),
			attribute.String("light.color", req.Color.String()),
			attribute.Int("light.removals", len(req.Ops.Removals)),
			attribute.Int("light.floods", len(req.Ops.Floods)),
		)

		start := time.Now()
		resp, err := l.engine.RunBatch(req)
		l.metrics.observeJob(req.Color, time.Since(start), err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logging.L().Warn("light batch rejected",
				zap.String("job", req.JobID),
				zap.Stringer("color", req.Color),
				zap.Error(err))
			return resp, err
		}

		span.SetAttributes(attribute.Int("light.modified_chunks", len(resp.ModifiedChunks)))
		return resp, nil
	})
}

// Stop дожидается текущих заданий
func (l *Lighter) Stop() {
	l.pool.Stop()
}
