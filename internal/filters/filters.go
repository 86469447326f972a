// Package filters translates the declarative filter options into the
// structured subscription request sent to the geyser feed.
package filters

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/drblury/geyserflow/internal/config"
	"github.com/drblury/geyserflow/internal/geyser"
)

// FilterName is the fixed logical name every enabled category is keyed by.
// The service holds exactly one filter configuration per category per process.
const FilterName = "client"

// SyntaxError reports a malformed entry in one of the textual filter options.
type SyntaxError struct {
	Category string
	Entry    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filters: invalid %s entry %q", e.Category, e.Entry)
}

// Build materializes the subscription request. Every category map is present
// in the result; categories that are disabled stay empty so the feed never
// delivers their update kind. The account allowlist file is the only I/O.
func Build(f *config.Filters, commitment *geyser.CommitmentLevel) (*geyser.SubscribeRequest, error) {
	req := &geyser.SubscribeRequest{
		Accounts:           map[string]*geyser.AccountsFilter{},
		Slots:              map[string]*geyser.SlotsFilter{},
		Transactions:       map[string]*geyser.TransactionsFilter{},
		TransactionsStatus: map[string]*geyser.TransactionsFilter{},
		Entry:              map[string]*geyser.EntryFilter{},
		Blocks:             map[string]*geyser.BlocksFilter{},
		BlocksMeta:         map[string]*geyser.BlocksMetaFilter{},
		Commitment:         commitment,
	}

	if f.Accounts {
		accounts, err := buildAccountsFilter(f)
		if err != nil {
			return nil, err
		}
		req.Accounts[FilterName] = accounts
	}

	if f.Slots {
		filterByCommitment := false
		if f.SlotsFilterByCommitment != nil {
			filterByCommitment = *f.SlotsFilterByCommitment
		}
		req.Slots[FilterName] = &geyser.SlotsFilter{
			FilterByCommitment: &filterByCommitment,
		}
	}

	if f.Transactions {
		req.Transactions[FilterName] = &geyser.TransactionsFilter{
			Vote:            f.TransactionsVote,
			Failed:          f.TransactionsFailed,
			Signature:       f.TransactionsSignature,
			AccountInclude:  orEmpty(f.TransactionsAccountInclude),
			AccountExclude:  orEmpty(f.TransactionsAccountExclude),
			AccountRequired: orEmpty(f.TransactionsAccountRequired),
		}
	}

	if f.TransactionsStatus {
		req.TransactionsStatus[FilterName] = &geyser.TransactionsFilter{
			Vote:            f.TransactionsStatusVote,
			Failed:          f.TransactionsStatusFailed,
			Signature:       f.TransactionsStatusSignature,
			AccountInclude:  orEmpty(f.TransactionsStatusAccountInclude),
			AccountExclude:  orEmpty(f.TransactionsStatusAccountExclude),
			AccountRequired: orEmpty(f.TransactionsStatusAccountRequired),
		}
	}

	if f.Entries {
		req.Entry[FilterName] = &geyser.EntryFilter{}
	}

	if f.Blocks {
		req.Blocks[FilterName] = &geyser.BlocksFilter{
			AccountInclude:      orEmpty(f.BlocksAccountInclude),
			IncludeTransactions: f.BlocksIncludeTransactions,
			IncludeAccounts:     f.BlocksIncludeAccounts,
			IncludeEntries:      f.BlocksIncludeEntries,
		}
	}

	if f.BlocksMeta {
		req.BlocksMeta[FilterName] = &geyser.BlocksMetaFilter{}
	}

	for _, entry := range f.AccountsDataSlice {
		offset, length, ok := splitUintPair(entry)
		if !ok {
			return nil, &SyntaxError{Category: "data_slice", Entry: entry}
		}
		req.AccountsDataSlice = append(req.AccountsDataSlice, geyser.DataSlice{
			Offset: offset,
			Length: length,
		})
	}

	if f.Ping != nil {
		req.Ping = &geyser.PingRequest{ID: *f.Ping}
	}

	return req, nil
}

func buildAccountsFilter(f *config.Filters) (*geyser.AccountsFilter, error) {
	// Inline addresses first, then the file, order preserved.
	addresses := append([]string{}, f.AccountsAccount...)
	if f.AccountsAccountPath != "" {
		fromFile, err := loadAccountList(f.AccountsAccountPath)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, fromFile...)
	}

	var rules []geyser.AccountsFilterRule

	for _, entry := range f.AccountsMemcmp {
		parts := strings.Split(entry, ",")
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, &SyntaxError{Category: "memcmp", Entry: entry}
		}
		offset, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, &SyntaxError{Category: "memcmp", Entry: entry}
		}
		rules = append(rules, geyser.AccountsFilterRule{
			Memcmp: &geyser.MemcmpFilter{
				Offset: offset,
				Data:   strings.TrimSpace(parts[1]),
			},
		})
	}

	if f.AccountsDatasize != nil {
		size := *f.AccountsDatasize
		rules = append(rules, geyser.AccountsFilterRule{Datasize: &size})
	}

	if f.AccountsTokenAccountState {
		state := true
		rules = append(rules, geyser.AccountsFilterRule{TokenAccountState: &state})
	}

	for _, entry := range f.AccountsLamports {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, &SyntaxError{Category: "lamports", Entry: entry}
		}
		cmp := geyser.LamportsCmp(parts[0])
		switch cmp {
		case geyser.LamportsEq, geyser.LamportsNe, geyser.LamportsLt, geyser.LamportsGt:
		default:
			return nil, &SyntaxError{Category: "lamports", Entry: entry}
		}
		value, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, &SyntaxError{Category: "lamports", Entry: entry}
		}
		rules = append(rules, geyser.AccountsFilterRule{
			Lamports: &geyser.LamportsFilter{Cmp: cmp, Value: value},
		})
	}

	return &geyser.AccountsFilter{
		Account:              addresses,
		Owner:                orEmpty(f.AccountsOwner),
		Filters:              rules,
		NonemptyTxnSignature: f.AccountsNonemptyTxnSig,
	}, nil
}

// loadAccountList reads a JSON array of account addresses.
func loadAccountList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filters: open account list %q: %w", path, err)
	}
	defer file.Close()

	var addresses []string
	if err := sonic.ConfigStd.NewDecoder(file).Decode(&addresses); err != nil {
		return nil, fmt.Errorf("filters: parse account list %q: %w", path, err)
	}
	return addresses, nil
}

func splitUintPair(entry string) (uint64, uint64, bool) {
	parts := strings.Split(entry, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	first, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	second, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return first, second, true
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
