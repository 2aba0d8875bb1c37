//go:build e2e && integration

package e2e

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ava-labs/libevm/accounts"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/common/hexutil"
	"github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/api"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
)

var contract = common.HexToAddress("0x00000000000000000000000000000000000000C0")

const mockAny = mock.Anything

func logs(l ...types.Log) []types.Log {
	return l
}

func scoreLog(player common.Address, score int64, block uint64, index uint) types.Log {
	return scores.NewLog(contract, player, big.NewInt(score), block, index)
}

func walletOf(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// signName returns the personal_sign signature of the name-claim message issued at issuedAt.
func signName(t *testing.T, name string, issuedAt int64) (common.Address, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(api.NameMessage(name, issuedAt))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey), hexutil.Encode(sig)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}
