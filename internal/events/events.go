package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Block is one finalized state-chain block as served by the archive node,
// carrying its events in emission order.
type Block struct {
	Height    uint64      `json:"height"`
	Hash      common.Hash `json:"hash"`
	Timestamp int64       `json:"timestamp"`
	SpecID    string      `json:"specId"`
	Events    []Event     `json:"events"`
}

// Event is one runtime event. Args stay raw until a handler decodes them
// against its versioned payload type.
type Event struct {
	Name         string          `json:"name"`
	Args         json.RawMessage `json:"args"`
	IndexInBlock uint32          `json:"indexInBlock"`
}

// BlockIndex renders the canonical "height-indexInBlock" position string
// recorded against lifecycle timestamps.
func BlockIndex(height uint64, indexInBlock uint32) string {
	return fmt.Sprintf("%d-%d", height, indexInBlock)
}

// ParseSpecVersion extracts the numeric runtime version from a spec id such
// as "swapnet@114".
func ParseSpecVersion(specID string) (uint32, error) {
	at := strings.LastIndex(specID, "@")
	if at < 0 || at == len(specID)-1 {
		return 0, fmt.Errorf("malformed spec id %q", specID)
	}

	v, err := strconv.ParseUint(specID[at+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed spec id %q: %w", specID, err)
	}
	return uint32(v), nil
}
