package jetstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streampilot/engine"
)

// consumerInfoSource is the slice of jetstream.Consumer the lag collector
// needs; narrowed so tests can script offsets.
type consumerInfoSource interface {
	Info(ctx context.Context) (*jetstream.ConsumerInfo, error)
}

// worker is one processing thread: a set of running consume contexts plus
// the consumer handles its lag is derived from.
type worker struct {
	name      string
	partition int
	info      consumerInfoSource
	consume   jetstream.ConsumeContext
	logger    *slog.Logger
}

// taskMetadata derives this worker's offset positions from the consumer.
// Delivered+pending approximates the log end; the ack floor is the
// committed position. Unknown values surface as -1 so the lag collector
// skips them.
func (w *worker) taskMetadata(ctx context.Context, topic string) engine.TaskMetadata {
	tp := engine.TopicPartition{Topic: topic, Partition: w.partition}
	task := engine.TaskMetadata{
		ID:               fmt.Sprintf("0_%d", w.partition),
		EndOffsets:       map[engine.TopicPartition]int64{tp: -1},
		CommittedOffsets: map[engine.TopicPartition]int64{tp: -1},
	}

	if w.info == nil {
		return task
	}

	infoCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info, err := w.info.Info(infoCtx)
	if err != nil {
		w.logger.Debug("Consumer info unavailable", "worker", w.name, "error", err)
		return task
	}

	end := int64(info.Delivered.Stream) + int64(info.NumPending)
	committed := int64(info.AckFloor.Stream)
	task.EndOffsets[tp] = end
	task.CommittedOffsets[tp] = committed
	return task
}

// stop halts message delivery. Draining is the application's concern.
func (w *worker) stop() {
	if w.consume != nil {
		w.consume.Stop()
	}
}
