// Package role derives the privilege class of an account from contract state.
package role

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role is one of Owner, FundManager or User. Values match the labels persisted
// with the session.
type Role string

const (
	Owner       Role = "owner"
	FundManager Role = "fundManager"
	User        Role = "user"
)

// Parse maps a persisted label back onto a Role. Unknown labels are User.
func Parse(raw string) Role {
	switch strings.TrimSpace(raw) {
	case string(Owner):
		return Owner
	case string(FundManager):
		return FundManager
	default:
		return User
	}
}

func (r Role) String() string { return string(r) }

// CanManageTokens reports whether r may whitelist tokens and update price feeds.
func (r Role) CanManageTokens() bool {
	return r == Owner || r == FundManager
}

// Reader is the contract state a Resolver needs.
type Reader interface {
	Owner(ctx context.Context) (common.Address, error)
	ActiveFundManagers(ctx context.Context) ([]common.Address, error)
}

// Resolver computes roles on every call; results are never cached.
type Resolver struct {
	reader Reader
	logger *slog.Logger
}

// NewResolver builds a resolver over reader. A nil logger uses slog.Default.
func NewResolver(reader Reader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{reader: reader, logger: logger.With(slog.String("component", "role"))}
}

// Resolve returns Owner when account owns the contract, FundManager when it is an
// active fund manager and User otherwise. Any read failure yields User.
func (r *Resolver) Resolve(ctx context.Context, account common.Address) Role {
	if r == nil || r.reader == nil {
		return User
	}
	owner, err := r.reader.Owner(ctx)
	if err != nil {
		r.logger.Warn("owner lookup failed, assuming user", slog.String("account", account.Hex()), slog.Any("error", err))
		return User
	}
	// common.Address compares the raw bytes, so checksum casing cannot matter.
	if owner == account {
		return Owner
	}
	managers, err := r.reader.ActiveFundManagers(ctx)
	if err != nil {
		r.logger.Warn("fund manager lookup failed, assuming user", slog.String("account", account.Hex()), slog.Any("error", err))
		return User
	}
	for _, manager := range managers {
		if manager == account {
			return FundManager
		}
	}
	return User
}

// ResolveLabel adapts Resolve to hooks that persist the role as a string.
func (r *Resolver) ResolveLabel(ctx context.Context, account common.Address) string {
	return string(r.Resolve(ctx, account))
}
