package bridge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// RequiredConfirmations is how deep a transaction must be buried before
// a worker will vouch for it.
const RequiredConfirmations = 3

// TransactionSubmitter is the worker's only way back into consensus:
// it wraps the vote in a transaction and feeds it to the pool.
type TransactionSubmitter interface {
	SubmitNotarization(notary AuthorityID, claimID EventClaimID, result NotarizationResult) error
}

// Worker is the per-authority offchain half of the bridge. It runs
// outside consensus, checks pending claims against an Ethereum node and
// votes through the submitter. Failures are silent: a claim that cannot
// be checked this round is simply retried on the next tick.
type Worker struct {
	module    *Module
	client    EthereumClient
	submitter TransactionSubmitter
	key       AuthorityID
	interval  time.Duration
	voted     *gocache.Cache
	log       zerolog.Logger
}

func NewWorker(
	module *Module,
	client EthereumClient,
	submitter TransactionSubmitter,
	key AuthorityID,
	interval time.Duration,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		module:    module,
		client:    client,
		submitter: submitter,
		key:       key,
		interval:  interval,
		// remembered long enough to outlive claim finalization
		voted: gocache.New(time.Hour, 10*time.Minute),
		log:   logger,
	}
}

// Run processes pending claims until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Worker) processPending(ctx context.Context) {
	ids, err := w.module.Store().PendingClaimIDs()
	if err != nil {
		w.log.Warn().Err(err).Msg("listing pending claims")
		return
	}
	for _, id := range ids {
		cacheKey := fmt.Sprintf("%d", id)
		if _, done := w.voted.Get(cacheKey); done {
			continue
		}
		claim, err := w.module.Store().GetClaim(id)
		if err != nil || claim == nil {
			continue
		}
		result, ok := w.verifyClaim(ctx, *claim)
		if !ok {
			// endpoint unreachable or not enough confirmations yet
			continue
		}
		if err := w.submitter.SubmitNotarization(w.key, id, result); err != nil {
			w.log.Warn().Uint64("claim", uint64(id)).Err(err).Msg("submitting notarization")
			continue
		}
		w.voted.SetDefault(cacheKey, struct{}{})
		w.log.Debug().Uint64("claim", uint64(id)).Str("result", result.String()).Msg("notarization submitted")
	}
}

// verifyClaim checks the claim against the Ethereum node. The second
// return is false when no verdict can be reached this round.
func (w *Worker) verifyClaim(ctx context.Context, claim EventClaim) (NotarizationResult, bool) {
	receipt, err := w.client.TransactionReceipt(ctx, claim.TxHash)
	if err != nil {
		w.log.Debug().Str("tx", claim.TxHash.Hex()).Err(err).Msg("receipt fetch failed")
		return NotarizationDataProviderErr, false
	}
	if receipt == nil {
		return NotarizationNoTxReceipt, true
	}
	if receipt.Status != 1 {
		return NotarizationTxStatusFailed, true
	}
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return NotarizationDataProviderErr, false
	}
	if head < uint64(receipt.BlockNumber)+RequiredConfirmations {
		// too fresh, wait for the chain to bury it
		return NotarizationDataProviderErr, false
	}
	return matchReceipt(claim, receipt), true
}

// matchReceipt looks for a log matching the claim's contract, event
// signature and data.
func matchReceipt(claim EventClaim, receipt *TransactionReceipt) NotarizationResult {
	contractSeen := false
	for _, log := range receipt.Logs {
		if log.Address != claim.Contract {
			continue
		}
		contractSeen = true
		if len(log.Topics) == 0 || log.Topics[0] != claim.EventSignature {
			continue
		}
		if bytes.Equal(log.Data, claim.Data) {
			return NotarizationValid
		}
		return NotarizationUnexpectedData
	}
	if !contractSeen {
		return NotarizationUnexpectedContract
	}
	return NotarizationUnexpectedData
}
