// Package record converts geyser updates into the canonical records published
// to the bus: a base-58 partition key plus a UTF-8 JSON payload.
package record

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"

	"github.com/drblury/geyserflow/internal/geyser"
)

// EpochSlots is the chain's fixed epoch length; epoch = slot / EpochSlots.
const EpochSlots uint64 = 432_000

// Sentinel errors for the two formatting failure classes. Callers decide the
// fallback policy; formatters only report.
var (
	ErrMissingField  = errors.New("record: required field missing")
	ErrDecodeFailure = errors.New("record: payload encoding failed")
)

var jsonAPI = sonic.ConfigStd

// Record is one canonical output record. It is never mutated after creation.
type Record struct {
	// Key is the partition key the bus routes on, base-58 text.
	Key string
	// Payload is UTF-8 JSON.
	Payload []byte
}

// Empty returns a record carrying an empty JSON object under key.
func Empty(key string) Record {
	return Record{Key: key, Payload: []byte("{}")}
}

// TransactionKey derives the partition key of a transaction update.
func TransactionKey(tx *geyser.TransactionInfo) string {
	return solana.SignatureFromBytes(tx.Signature).String()
}

// BlockMetaKey derives the partition key of a block metadata update. The feed
// already delivers the blockhash as base-58 text.
func BlockMetaKey(meta *geyser.BlockMetaUpdate) string {
	return meta.Blockhash
}

// FormatTransaction encodes the transaction through the encoder collaborator
// and overlays the slot and the derived epoch.
func FormatTransaction(enc TransactionEncoder, upd *geyser.TransactionUpdate) (Record, error) {
	if upd.Transaction == nil {
		return Record{}, fmt.Errorf("%w: transaction", ErrMissingField)
	}

	obj, err := enc.EncodeTransaction(upd.Transaction)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	obj["slot"] = upd.Slot
	obj["epoch"] = upd.Slot / EpochSlots

	payload, err := jsonAPI.Marshal(obj)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	return Record{Key: TransactionKey(upd.Transaction), Payload: payload}, nil
}

type blockMetaPayload struct {
	Slot                     uint64  `json:"slot"`
	Blockhash                string  `json:"blockhash"`
	Rewards                  any     `json:"rewards"`
	BlockTime                *int64  `json:"blockTime"`
	BlockHeight              *uint64 `json:"blockHeight"`
	ParentSlot               uint64  `json:"parentSlot"`
	ParentBlockhash          string  `json:"parentBlockhash"`
	ExecutedTransactionCount uint64  `json:"executedTransactionCount"`
	EntriesCount             uint64  `json:"entriesCount"`
}

// FormatBlockMeta maps scalar fields verbatim; rewards, block time, and block
// height render as null when the feed left them unset.
func FormatBlockMeta(upd *geyser.BlockMetaUpdate) (Record, error) {
	payload, err := jsonAPI.Marshal(blockMetaPayload{
		Slot:                     upd.Slot,
		Blockhash:                upd.Blockhash,
		Rewards:                  upd.Rewards,
		BlockTime:                upd.BlockTime,
		BlockHeight:              upd.BlockHeight,
		ParentSlot:               upd.ParentSlot,
		ParentBlockhash:          upd.ParentBlockhash,
		ExecutedTransactionCount: upd.ExecutedTransactionCount,
		EntriesCount:             upd.EntriesCount,
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return Record{Key: BlockMetaKey(upd), Payload: payload}, nil
}

type accountPayload struct {
	Pubkey       string  `json:"pubkey"`
	Lamports     uint64  `json:"lamports"`
	Owner        string  `json:"owner"`
	RentEpoch    uint64  `json:"rent_epoch"`
	Slot         uint64  `json:"slot"`
	Data         string  `json:"data"`
	TxnSignature *string `json:"txn_signature"`
}

// FormatAccount renders keys as base-58 text and account data as base64. The
// dispatcher does not currently route account updates to the queue; the
// formatter is kept for completeness.
func FormatAccount(upd *geyser.AccountUpdate) (Record, error) {
	info := upd.Account
	if info == nil {
		return Record{}, fmt.Errorf("%w: account info", ErrMissingField)
	}

	var txnSignature *string
	if info.TxnSignature != nil {
		sig := solana.SignatureFromBytes(info.TxnSignature).String()
		txnSignature = &sig
	}

	pubkey := solana.PublicKeyFromBytes(info.Pubkey).String()
	payload, err := jsonAPI.Marshal(accountPayload{
		Pubkey:       pubkey,
		Lamports:     info.Lamports,
		Owner:        solana.PublicKeyFromBytes(info.Owner).String(),
		RentEpoch:    info.RentEpoch,
		Slot:         upd.Slot,
		Data:         base64.StdEncoding.EncodeToString(info.Data),
		TxnSignature: txnSignature,
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return Record{Key: pubkey, Payload: payload}, nil
}

type slotPayload struct {
	Slot   uint64 `json:"slot"`
	Status string `json:"status"`
}

// FormatSlot is kept for completeness alongside FormatAccount.
func FormatSlot(upd *geyser.SlotUpdate) (Record, error) {
	payload, err := jsonAPI.Marshal(slotPayload{
		Slot:   upd.Slot,
		Status: upd.Status.String(),
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return Record{Key: fmt.Sprintf("%d", upd.Slot), Payload: payload}, nil
}
