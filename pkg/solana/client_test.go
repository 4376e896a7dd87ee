package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureStatus(t *testing.T) {
	zero, one := 0, 1

	testCases := []struct {
		s         SignatureStatus
		confirmed bool
		finalized bool
	}{
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "random",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusProcessed,
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &one,
				ConfirmationStatus: "",
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusConfirmed,
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusFinalized,
			},
			confirmed: true,
			finalized: true,
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.confirmed, tc.s.Confirmed())
		assert.Equal(t, tc.finalized, tc.s.Finalized())
	}
}

func TestClient_GetLatestBlockhashAndHeight(t *testing.T) {
	var expected Blockhash
	for i := range expected {
		expected[i] = byte(i)
	}

	endpoint := newTestRPCServer(t, map[string]string{
		"getLatestBlockhash": fmt.Sprintf(`{"context":{"slot":1},"value":{"blockhash":"%s","lastValidBlockHeight":4242}}`, base58.Encode(expected[:])),
	})

	hash, height, err := New(endpoint).GetLatestBlockhashAndHeight(CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, expected, hash)
	assert.EqualValues(t, 4242, height)
}

func TestClient_GetMultipleAccounts(t *testing.T) {
	owner := make([]byte, 32)
	owner[0] = 1

	endpoint := newTestRPCServer(t, map[string]string{
		"getMultipleAccounts": fmt.Sprintf(`{"context":{"slot":1},"value":[null,{"lamports":2039280,"owner":"%s","data":["%s","base64"],"executable":false}]}`,
			base58.Encode(owner),
			base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		),
	})

	infos, err := New(endpoint).GetMultipleAccounts([]ed25519.PublicKey{make([]byte, 32), owner}, CommitmentConfirmed)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Nil(t, infos[0])
	require.NotNil(t, infos[1])
	assert.EqualValues(t, 2039280, infos[1].Lamports)
	assert.EqualValues(t, owner, infos[1].Owner)
	assert.Equal(t, []byte{1, 2, 3}, infos[1].Data)
}

func TestClient_GetSignatureStatuses(t *testing.T) {
	endpoint := newTestRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":1},"value":[null,{"slot":10,"confirmations":null,"confirmationStatus":"finalized","err":null},{"slot":11,"confirmations":1,"confirmationStatus":"confirmed","err":{"InstructionError":[2,"ComputationalBudgetExceeded"]}}]}`,
	})

	statuses, err := New(endpoint).GetSignatureStatuses(make([]Signature, 3))
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Nil(t, statuses[0])

	require.NotNil(t, statuses[1])
	assert.True(t, statuses[1].Finalized())
	assert.Nil(t, statuses[1].ErrorResult)

	require.NotNil(t, statuses[2])
	assert.True(t, statuses[2].Confirmed())
	require.NotNil(t, statuses[2].ErrorResult)
	assert.True(t, statuses[2].ErrorResult.IsComputeBudgetExceeded())
}

func TestClient_GetAccountInfo_NotFound(t *testing.T) {
	endpoint := newTestRPCServer(t, map[string]string{
		"getAccountInfo": `{"context":{"slot":1},"value":null}`,
	})

	_, err := New(endpoint).GetAccountInfo(make([]byte, 32), CommitmentConfirmed)
	assert.Equal(t, ErrNoAccountInfo, err)
}

func TestClient_SubmitTransaction_Rejections(t *testing.T) {
	txn := NewTransaction(make([]byte, 32))
	txn.Signatures[0][0] = 1

	for _, tc := range []struct {
		response string
		rejected bool
		txErr    bool
	}{
		{`{"code":-32602,"message":"invalid transaction: failed to deserialize"}`, true, false},
		{`{"code":-32003,"message":"Transaction signature verification failure"}`, true, false},
		{`{"code":-32002,"message":"Transaction simulation failed","data":{"err":"AccountInUse"}}`, false, true},
		{`{"code":-32099,"message":"unknown"}`, false, false},
	} {
		endpoint := newTestRPCErrorServer(t, "sendTransaction", tc.response)

		sig, err := New(endpoint).SubmitTransaction(txn, CommitmentConfirmed)
		require.Error(t, err)
		assert.Equal(t, tc.rejected, errors.Is(err, ErrTransactionRejected))

		var txErr *TransactionError
		assert.Equal(t, tc.txErr, errors.As(err, &txErr))

		if tc.rejected {
			assert.Equal(t, Signature{}, sig)
		} else {
			assert.Equal(t, txn.Signatures[0], sig)
		}
	}
}

func newTestRPCErrorServer(t *testing.T, method, rpcErr string) string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, method, req.Method)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":%s}`, req.ID, rpcErr)
	}))
	t.Cleanup(server.Close)

	return server.URL
}

func newTestRPCServer(t *testing.T, results map[string]string) string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(server.Close)

	return server.URL
}
