package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestJSONRPCClient(t *testing.T) {
	txHash := common.HexToHash("0xaa")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_getTransactionReceipt":
			require.Equal(t, txHash.Hex(), req.Params[0])
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
				"blockNumber":"0x64",
				"status":"0x1",
				"logs":[{
					"address":"0x00000000000000000000000000000000000000bb",
					"topics":["0x00000000000000000000000000000000000000000000000000000000000000cc"],
					"data":"0x010203"
				}]
			}}`))
		case "eth_blockNumber":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x6e"}`))
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	}))
	defer server.Close()

	client := NewJSONRPCClient(server.URL)
	receipt, err := client.TransactionReceipt(context.Background(), txHash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, hexutil.Uint64(100), receipt.BlockNumber)
	require.Equal(t, hexutil.Uint64(1), receipt.Status)
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, common.HexToAddress("0xbb"), receipt.Logs[0].Address)

	head, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(110), head)
}

func TestJSONRPCClientMissingReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer server.Close()

	client := NewJSONRPCClient(server.URL)
	receipt, err := client.TransactionReceipt(context.Background(), common.HexToHash("0xaa"))
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func TestMatchReceipt(t *testing.T) {
	claim := EventClaim{
		Contract:       common.HexToAddress("0xbb"),
		EventSignature: common.HexToHash("0xcc"),
		Data:           []byte{1, 2, 3},
	}
	matching := EthLog{
		Address: claim.Contract,
		Topics:  []common.Hash{claim.EventSignature},
		Data:    []byte{1, 2, 3},
	}

	require.Equal(t, NotarizationValid, matchReceipt(claim, &TransactionReceipt{Logs: []EthLog{matching}}))

	wrongData := matching
	wrongData.Data = []byte{9}
	require.Equal(t, NotarizationUnexpectedData, matchReceipt(claim, &TransactionReceipt{Logs: []EthLog{wrongData}}))

	wrongContract := matching
	wrongContract.Address = common.HexToAddress("0xdd")
	require.Equal(t, NotarizationUnexpectedContract, matchReceipt(claim, &TransactionReceipt{Logs: []EthLog{wrongContract}}))

	// unrelated logs before the matching one are skipped
	require.Equal(t, NotarizationValid, matchReceipt(claim, &TransactionReceipt{Logs: []EthLog{wrongContract, matching}}))
}

type stubEthClient struct {
	receipt *TransactionReceipt
	head    uint64
	err     error
}

func (s *stubEthClient) TransactionReceipt(context.Context, common.Hash) (*TransactionReceipt, error) {
	return s.receipt, s.err
}

func (s *stubEthClient) BlockNumber(context.Context) (uint64, error) {
	return s.head, s.err
}

type recordingSubmitter struct {
	votes map[EventClaimID]NotarizationResult
}

func (r *recordingSubmitter) SubmitNotarization(_ AuthorityID, id EventClaimID, result NotarizationResult) error {
	if r.votes == nil {
		r.votes = make(map[EventClaimID]NotarizationResult)
	}
	r.votes[id] = result
	return nil
}

func newTestWorker(env *bridgeEnv, client EthereumClient, submitter TransactionSubmitter) *Worker {
	return NewWorker(env.mod, client, submitter, authority(1), time.Second, zerolog.Nop())
}

func TestWorkerVotesOnConfirmedClaim(t *testing.T) {
	env := newBridgeEnv(t, authority(1), authority(2), authority(3))
	id := env.submitClaim()

	client := &stubEthClient{
		receipt: &TransactionReceipt{
			BlockNumber: 100,
			Status:      1,
			Logs: []EthLog{{
				Address: common.HexToAddress("0xbb"),
				Topics:  []common.Hash{common.HexToHash("0xcc")},
				Data:    []byte{1, 2, 3},
			}},
		},
		head: 100 + RequiredConfirmations,
	}
	submitter := &recordingSubmitter{}
	worker := newTestWorker(env, client, submitter)

	worker.processPending(context.Background())
	require.Equal(t, NotarizationValid, submitter.votes[id])

	// the cache stops a second vote on the same claim
	submitter.votes = nil
	worker.processPending(context.Background())
	require.Empty(t, submitter.votes)
}

func TestWorkerWaitsForConfirmations(t *testing.T) {
	env := newBridgeEnv(t, authority(1), authority(2), authority(3))
	id := env.submitClaim()

	client := &stubEthClient{
		receipt: &TransactionReceipt{BlockNumber: 100, Status: 1},
		head:    101,
	}
	submitter := &recordingSubmitter{}
	worker := newTestWorker(env, client, submitter)

	// too fresh: no vote, no cache entry, retried next round
	worker.processPending(context.Background())
	require.Empty(t, submitter.votes)

	client.head = 100 + RequiredConfirmations
	client.receipt.Logs = []EthLog{{
		Address: common.HexToAddress("0xbb"),
		Topics:  []common.Hash{common.HexToHash("0xcc")},
		Data:    []byte{1, 2, 3},
	}}
	worker.processPending(context.Background())
	require.Equal(t, NotarizationValid, submitter.votes[id])
}

func TestWorkerVotesNoOnMissingReceipt(t *testing.T) {
	env := newBridgeEnv(t, authority(1), authority(2), authority(3))
	id := env.submitClaim()

	submitter := &recordingSubmitter{}
	worker := newTestWorker(env, &stubEthClient{receipt: nil}, submitter)

	worker.processPending(context.Background())
	require.Equal(t, NotarizationNoTxReceipt, submitter.votes[id])
}
