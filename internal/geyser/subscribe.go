package geyser

// SubscribeRequest is the structured subscription sent once at stream start.
// Every per-category map is always non-nil: a disabled category is an empty
// map, never an absent field, so the outbound request is structurally complete
// and the feed does not deliver that update kind.
type SubscribeRequest struct {
	Accounts           map[string]*AccountsFilter
	Slots              map[string]*SlotsFilter
	Transactions       map[string]*TransactionsFilter
	TransactionsStatus map[string]*TransactionsFilter
	Entry              map[string]*EntryFilter
	Blocks             map[string]*BlocksFilter
	BlocksMeta         map[string]*BlocksMetaFilter
	Commitment         *CommitmentLevel
	AccountsDataSlice  []DataSlice
	Ping               *PingRequest
}

// AccountsFilter selects account writes. The allowlists match any, the Filters
// rules must all match.
type AccountsFilter struct {
	Account              []string
	Owner                []string
	Filters              []AccountsFilterRule
	NonemptyTxnSignature *bool
}

// AccountsFilterRule is a oneof: exactly one field is set.
type AccountsFilterRule struct {
	Memcmp            *MemcmpFilter
	Datasize          *uint64
	TokenAccountState *bool
	Lamports          *LamportsFilter
}

// MemcmpFilter matches account data at Offset against base58-encoded Data.
type MemcmpFilter struct {
	Offset uint64
	Data   string
}

// LamportsCmp is the comparator of a lamports rule.
type LamportsCmp string

const (
	LamportsEq LamportsCmp = "eq"
	LamportsNe LamportsCmp = "ne"
	LamportsLt LamportsCmp = "lt"
	LamportsGt LamportsCmp = "gt"
)

// LamportsFilter compares the account balance against Value.
type LamportsFilter struct {
	Cmp   LamportsCmp
	Value uint64
}

// SlotsFilter selects slot updates.
type SlotsFilter struct {
	FilterByCommitment *bool
	InterslotUpdates   *bool
}

// TransactionsFilter selects transactions. The same shape serves both the
// transactions and the transactions-status categories.
type TransactionsFilter struct {
	Vote            *bool
	Failed          *bool
	Signature       *string
	AccountInclude  []string
	AccountExclude  []string
	AccountRequired []string
}

// EntryFilter selects entry updates. It has no sub-options.
type EntryFilter struct{}

// BlocksFilter selects full blocks and controls which contents they embed.
type BlocksFilter struct {
	AccountInclude      []string
	IncludeTransactions *bool
	IncludeAccounts     *bool
	IncludeEntries      *bool
}

// BlocksMetaFilter selects block metadata updates. It has no sub-options.
type BlocksMetaFilter struct{}

// DataSlice limits delivered account data to Length bytes starting at Offset.
type DataSlice struct {
	Offset uint64
	Length uint64
}

// PingRequest asks the feed to answer with a pong carrying ID.
type PingRequest struct {
	ID int32
}
