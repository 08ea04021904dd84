package tasks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/esignhq/esign/internal/esignerr"
)

// RiverEnqueuer adapts a *river.Client to the Enqueuer interface.
type RiverEnqueuer struct {
	Client *river.Client[pgx.Tx]
}

func (e *RiverEnqueuer) EnqueueSignEnvelope(ctx context.Context, args SignEnvelopeArgs) error {
	_, err := e.Client.Insert(ctx, args, nil)
	return err
}

func (e *RiverEnqueuer) EnqueueProgressEnvelope(ctx context.Context, args ProgressEnvelopeArgs) error {
	_, err := e.Client.Insert(ctx, args, nil)
	return err
}

func (e *RiverEnqueuer) EnqueueRequestSignature(ctx context.Context, args RequestSignatureArgs) error {
	_, err := e.Client.Insert(ctx, args, nil)
	return err
}

func (e *RiverEnqueuer) EnqueueSendFinal(ctx context.Context, args SendFinalArgs) error {
	_, err := e.Client.Insert(ctx, args, nil)
	return err
}

// NewClient builds a river.Client wired to every task worker in this
// package, against pool. Concurrency is capped at 2 per spec.md §4.F's
// "Concurrency prefetch = 2" (river has no literal AMQP prefetch count;
// QueueConfig.MaxWorkers on the single default queue is the equivalent
// bound on concurrently-running jobs).
func NewClient(pool *pgxpool.Pool, deps *Deps) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, &SignEnvelopeWorker{Deps: deps})
	river.AddWorker(workers, &ProgressEnvelopeWorker{Deps: deps})
	river.AddWorker(workers, &RequestSignatureWorker{Deps: deps})
	river.AddWorker(workers, &SendFinalWorker{Deps: deps})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "tasks.NewClient", fmt.Errorf("new river client: %w", err))
	}
	return client, nil
}
