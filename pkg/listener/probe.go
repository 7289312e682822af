package listener

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/certen/exec-orchestrator/pkg/chaingateway"
)

// ChainProbe is the pluggable capability that decides how a Listener
// discovers commitment batches: by watching a chain event, or by
// polling a view function and exiting after the first batch. This
// composes instead of the Listener -> EthListener -> ProactiveEthListener
// inheritance chain the design replaces (§9).
type ChainProbe interface {
	Run(ctx context.Context, gw chaingateway.ChainGateway, address string, onBatch func([]*big.Int), pollInterval time.Duration) error
}

// EventDrivenProbe watches the CommitmentOpen event indefinitely (until
// ctx is cancelled), emitting one batch per matched event.
type EventDrivenProbe struct{}

func (EventDrivenProbe) Run(ctx context.Context, gw chaingateway.ChainGateway, address string, onBatch func([]*big.Int), pollInterval time.Duration) error {
	return gw.WaitForCommitmentOpen(ctx, address, onBatch, pollInterval)
}

// PollThenExitProbe polls IsOpenFinished on a fixed inner interval; the
// first time it observes true, it fetches the batch once via
// GetInputAndCommitment, emits it, and returns. No event is used.
type PollThenExitProbe struct {
	// InnerPollInterval overrides the 1-second default from the design
	// note ("1 s in the proactive variant"); zero means use that
	// default.
	InnerPollInterval time.Duration
}

func (p PollThenExitProbe) Run(ctx context.Context, gw chaingateway.ChainGateway, address string, onBatch func([]*big.Int), _ time.Duration) error {
	interval := p.InnerPollInterval
	if interval == 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		finished, err := gw.IsOpenFinished(ctx, address)
		if err != nil {
			var badOutput *chaingateway.BadFunctionCallOutput
			if chaingateway.IsTransient(err) || errors.As(err, &badOutput) {
				log.Printf("[PollThenExitProbe %s] non-fatal isOpenFinished error, still polling: %v", address, err)
				continue
			}
			return err
		}
		if !finished {
			continue
		}

		commitments, err := gw.GetInputAndCommitment(ctx, address)
		if err != nil {
			return err
		}
		onBatch(commitments)
		return nil
	}
}

var (
	_ ChainProbe = EventDrivenProbe{}
	_ ChainProbe = PollThenExitProbe{}
)
