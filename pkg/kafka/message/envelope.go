// Package message defines the JSON envelope written to the score topic.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
)

const (
	TypeScoreSubmitted = "score_submitted"
	VersionScore       = 1
)

type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// ScorePayload is the data section of a score_submitted envelope.
type ScorePayload struct {
	Wallet      string `json:"wallet"`
	Score       string `json:"score"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`
	Contract    string `json:"contract"`
}

func Open(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func New(msgType string, version int, id string, ts string, data json.RawMessage) *Envelope {
	return &Envelope{
		Type:    msgType,
		Version: version,
		ID:      id,
		TS:      ts,
		Data:    data,
	}
}

// EventID identifies a log uniquely on chain; consumers dedupe on it.
func EventID(ev scores.ScoreSubmittedEvent) string {
	return fmt.Sprintf("%s:%d", ev.TxHash.Hex(), ev.LogIndex)
}

// NewScoreEnvelope wraps ev in a versioned score_submitted envelope.
func NewScoreEnvelope(ev scores.ScoreSubmittedEvent, contract string, at time.Time) (*Envelope, error) {
	data, err := json.Marshal(ScorePayload{
		Wallet:      ev.Wallet(),
		Score:       ev.Score.String(),
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash.Hex(),
		LogIndex:    ev.LogIndex,
		Contract:    contract,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score payload: %w", err)
	}
	return New(TypeScoreSubmitted, VersionScore, EventID(ev), at.UTC().Format(time.RFC3339Nano), data), nil
}

// Score decodes the data section of a score_submitted envelope.
func (e *Envelope) Score() (ScorePayload, error) {
	if e.Type != TypeScoreSubmitted {
		return ScorePayload{}, fmt.Errorf("unexpected envelope type %q", e.Type)
	}
	var p ScorePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return ScorePayload{}, fmt.Errorf("failed to unmarshal score payload: %w", err)
	}
	return p, nil
}
