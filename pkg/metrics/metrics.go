package metrics

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000, 30000, 50000, 100000)

var (
	ExecMode, _ = tag.NewKey("exec_mode") // implicit or explicit
	Phase, _    = tag.NewKey("phase")     // begin, deliver or end
)

var (
	MessagesDelivered  = stats.Int64("messages_delivered", "Number of messages delivered to the executor", stats.UnitDimensionless)
	MessagesFailed     = stats.Int64("messages_failed", "Number of delivered messages that did not exit successfully", stats.UnitDimensionless)
	GasUsed            = stats.Int64("gas_used", "Gas used by delivered messages", stats.UnitDimensionless)
	PhaseDuration      = stats.Float64("phase_duration_ms", "Time taken by a block execution phase", stats.UnitMilliseconds)
	BlockHeight        = stats.Int64("block_height", "Height of the block being executed", stats.UnitDimensionless)
	CheckpointsCreated = stats.Int64("checkpoints_created", "Number of bottom-up checkpoints created", stats.UnitDimensionless)
)

var DefaultViews = []*view.View{
	{
		Name:        MessagesDelivered.Name() + "_total",
		Measure:     MessagesDelivered,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ExecMode},
	},
	{
		Name:        MessagesFailed.Name() + "_total",
		Measure:     MessagesFailed,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ExecMode},
	},
	{
		Name:        GasUsed.Name() + "_total",
		Measure:     GasUsed,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{ExecMode},
	},
	{
		Measure:     PhaseDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Phase},
	},
	{
		Measure:     BlockHeight,
		Aggregation: view.LastValue(),
	},
	{
		Name:        CheckpointsCreated.Name() + "_total",
		Measure:     CheckpointsCreated,
		Aggregation: view.Count(),
	},
}

// RegisterViews registers DefaultViews with opencensus.
func RegisterViews() error {
	return view.Register(DefaultViews...)
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
	}
}

// RecordInc is a convenience function that increments a counter.
func RecordInc(ctx context.Context, m *stats.Int64Measure) {
	stats.Record(ctx, m.M(1))
}

// WithTagValue is a convenience function that upserts the tag value in the given context.
func WithTagValue(ctx context.Context, k tag.Key, v string) context.Context {
	ctx, _ = tag.New(ctx, tag.Upsert(k, v))
	return ctx
}
