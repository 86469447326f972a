package record

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/drblury/geyserflow/internal/geyser"
)

// TransactionEncoder renders the inner transaction payload into a JSON-able
// object. The full on-chain encoding rules live behind this interface;
// implementations may plug in a complete transaction decoder.
type TransactionEncoder interface {
	EncodeTransaction(tx *geyser.TransactionInfo) (map[string]any, error)
}

// Base58Encoder is the default encoder: it renders the signature as base-58
// text and passes the wire-level payload through untouched.
type Base58Encoder struct{}

func (Base58Encoder) EncodeTransaction(tx *geyser.TransactionInfo) (map[string]any, error) {
	if tx == nil {
		return nil, errors.New("record: nil transaction")
	}
	return map[string]any{
		"signature":   solana.SignatureFromBytes(tx.Signature).String(),
		"isVote":      tx.IsVote,
		"index":       tx.Index,
		"transaction": tx.Raw,
	}, nil
}
