package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// TokenToHash converts a Token to Redis hash fields.
func TokenToHash(t Token) map[string]interface{} {
	return map[string]interface{}{
		"value":         t.Value,
		"expires_at_ms": t.ExpiresAt.UnixMilli(),
	}
}

// HashToToken converts Redis hash fields back to a Token.
func HashToToken(hash map[string]string) (Token, error) {
	value := hash["value"]
	if value == "" {
		return Token{}, fmt.Errorf("token hash missing value")
	}

	ms, err := strconv.ParseInt(hash["expires_at_ms"], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid expires_at_ms field: %w", err)
	}

	return Token{Value: value, ExpiresAt: time.UnixMilli(ms)}, nil
}

// EncodePlacement renders a placement as JSON for the journal and event stream.
func EncodePlacement(p *Placement) ([]byte, error) {
	data, err := sonnet.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal placement: %w", err)
	}
	return data, nil
}

// DecodePlacement parses a journal entry.
func DecodePlacement(data []byte) (*Placement, error) {
	var p Placement
	if err := sonnet.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal placement: %w", err)
	}
	return &p, nil
}
