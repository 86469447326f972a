// Package geyser models the upstream geyser feed: the update variants it
// emits, the subscription request sent before streaming begins, and the client
// interfaces the pipeline consumes. Decoding the wire protocol itself is
// delegated to a WireCodec collaborator.
package geyser

// Update is the closed set of variants the upstream feed emits. Every
// consumption point switches over the concrete types so that adding a variant
// forces the switch to be revisited.
type Update interface {
	isUpdate()
}

// AccountInfo describes one account write as delivered by the feed.
type AccountInfo struct {
	Pubkey       []byte
	Lamports     uint64
	Owner        []byte
	Executable   bool
	RentEpoch    uint64
	Data         []byte
	WriteVersion uint64
	// TxnSignature is nil for writes not caused by a transaction.
	TxnSignature []byte
}

// AccountUpdate carries a single account write.
type AccountUpdate struct {
	Slot      uint64
	Account   *AccountInfo
	IsStartup bool
}

// SlotUpdate reports a slot advancing to a commitment level.
type SlotUpdate struct {
	Slot   uint64
	Parent *uint64
	Status CommitmentLevel
}

// TransactionInfo is the inner transaction payload. Raw holds the wire-level
// transaction and meta exactly as the WireCodec decoded them; only the
// TransactionEncoder collaborator interprets its shape.
type TransactionInfo struct {
	Signature []byte
	IsVote    bool
	Index     uint64
	Raw       any
}

// TransactionUpdate carries one processed transaction.
type TransactionUpdate struct {
	Slot        uint64
	Transaction *TransactionInfo
}

// TransactionStatusUpdate carries a transaction status without the payload.
type TransactionStatusUpdate struct {
	Slot      uint64
	Signature []byte
	IsVote    bool
	Index     uint64
	Err       []byte
}

// EntryUpdate carries one ledger entry.
type EntryUpdate struct {
	Slot                     uint64
	Index                    uint64
	NumHashes                uint64
	Hash                     []byte
	ExecutedTransactionCount uint64
	StartingTransactionIndex uint64
}

// BlockUpdate carries a full block, including whichever of transactions,
// accounts, and entries the subscription asked to embed.
type BlockUpdate struct {
	Slot                     uint64
	Blockhash                string
	Rewards                  any
	BlockTime                *int64
	BlockHeight              *uint64
	ParentSlot               uint64
	ParentBlockhash          string
	ExecutedTransactionCount uint64
	Transactions             []*TransactionInfo
	UpdatedAccountCount      uint64
	Accounts                 []*AccountInfo
	EntriesCount             uint64
	Entries                  []*EntryUpdate
}

// BlockMetaUpdate carries block metadata without the block contents.
type BlockMetaUpdate struct {
	Slot                     uint64
	Blockhash                string
	Rewards                  any
	BlockTime                *int64
	BlockHeight              *uint64
	ParentSlot               uint64
	ParentBlockhash          string
	ExecutedTransactionCount uint64
	EntriesCount             uint64
}

// PingUpdate is a keep-alive probe from the feed.
type PingUpdate struct{}

// PongUpdate answers a ping the subscription requested.
type PongUpdate struct {
	ID int32
}

func (*AccountUpdate) isUpdate()           {}
func (*SlotUpdate) isUpdate()              {}
func (*TransactionUpdate) isUpdate()       {}
func (*TransactionStatusUpdate) isUpdate() {}
func (*EntryUpdate) isUpdate()             {}
func (*BlockUpdate) isUpdate()             {}
func (*BlockMetaUpdate) isUpdate()         {}
func (*PingUpdate) isUpdate()              {}
func (*PongUpdate) isUpdate()              {}
