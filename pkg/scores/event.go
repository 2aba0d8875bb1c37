// Package scores decodes ScoreSubmitted logs emitted by the memory game contract.
package scores

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ava-labs/libevm/accounts/abi"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/core/types"
)

// EventName is the Solidity event carrying a submitted score.
const EventName = "ScoreSubmitted"

const contractABI = `[{
	"anonymous": false,
	"type": "event",
	"name": "ScoreSubmitted",
	"inputs": [
		{"indexed": true, "internalType": "address", "name": "player", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "score", "type": "uint256"}
	]
}]`

var (
	ErrUnexpectedShape  = errors.New("log does not match ScoreSubmitted")
	ErrMissingPlayer    = errors.New("score event has no player")
	ErrNonPositiveScore = errors.New("score must be positive")
	ErrScoreOverflow    = errors.New("score does not fit in int64")
)

var (
	// ABI is the parsed event ABI of the game contract.
	ABI abi.ABI
	// Topic is topic0 of every ScoreSubmitted log.
	Topic common.Hash

	indexedArgs abi.Arguments
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		panic(fmt.Sprintf("parse score ABI: %v", err))
	}
	ABI = parsed
	ev := parsed.Events[EventName]
	Topic = ev.ID
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexedArgs = append(indexedArgs, arg)
		}
	}
}

// ScoreSubmittedEvent is one on-chain score submission. Ordering is block number, then log index.
type ScoreSubmittedEvent struct {
	Player      common.Address `json:"player"`
	Score       *big.Int       `json:"score"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
	LogIndex    uint           `json:"logIndex"`
}

// Wallet returns the lowercase hex form used as the leaderboard key.
func (e ScoreSubmittedEvent) Wallet() string {
	return strings.ToLower(e.Player.Hex())
}

// ScoreInt64 returns the score as the integer stored in the leaderboard.
func (e ScoreSubmittedEvent) ScoreInt64() int64 {
	return e.Score.Int64()
}

type rawEvent struct {
	Player common.Address
	Score  *big.Int
}

// Decode extracts a ScoreSubmittedEvent from a raw log. Any returned error means the log should be skipped.
func Decode(log types.Log) (ScoreSubmittedEvent, error) {
	if len(log.Topics) != 1+len(indexedArgs) || log.Topics[0] != Topic {
		return ScoreSubmittedEvent{}, ErrUnexpectedShape
	}

	var out rawEvent
	if err := ABI.UnpackIntoInterface(&out, EventName, log.Data); err != nil {
		return ScoreSubmittedEvent{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}
	if err := abi.ParseTopics(&out, indexedArgs, log.Topics[1:]); err != nil {
		return ScoreSubmittedEvent{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}

	if out.Player == (common.Address{}) {
		return ScoreSubmittedEvent{}, ErrMissingPlayer
	}
	if out.Score == nil || out.Score.Sign() <= 0 {
		return ScoreSubmittedEvent{}, ErrNonPositiveScore
	}
	if !out.Score.IsInt64() {
		return ScoreSubmittedEvent{}, ErrScoreOverflow
	}

	return ScoreSubmittedEvent{
		Player:      out.Player,
		Score:       out.Score,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

// SkipReason maps a decode error to a short metrics label.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingPlayer):
		return "missing_player"
	case errors.Is(err, ErrNonPositiveScore):
		return "non_positive_score"
	case errors.Is(err, ErrScoreOverflow):
		return "score_overflow"
	default:
		return "unexpected_shape"
	}
}

// NewLog builds a ScoreSubmitted log the way the contract emits it. Used by tests and the debug tooling.
func NewLog(contract, player common.Address, score *big.Int, blockNumber uint64, index uint) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{Topic, common.BytesToHash(player.Bytes())},
		Data:        common.LeftPadBytes(score.Bytes(), 32),
		BlockNumber: blockNumber,
		Index:       index,
	}
}
