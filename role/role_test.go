package role

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeReader struct {
	owner       common.Address
	managers    []common.Address
	ownerErr    error
	managersErr error
	calls       int
}

func (f *fakeReader) Owner(context.Context) (common.Address, error) {
	f.calls++
	return f.owner, f.ownerErr
}

func (f *fakeReader) ActiveFundManagers(context.Context) ([]common.Address, error) {
	f.calls++
	return f.managers, f.managersErr
}

var (
	ownerAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	managerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	userAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve(t *testing.T) {
	reader := &fakeReader{owner: ownerAddr, managers: []common.Address{managerAddr}}
	r := NewResolver(reader, quietLogger())

	cases := []struct {
		name    string
		account common.Address
		want    Role
	}{
		{"owner", ownerAddr, Owner},
		{"fund manager", managerAddr, FundManager},
		{"user", userAddr, User},
		// HexToAddress normalises casing, mirroring a case-insensitive compare.
		{"owner lowercase input", common.HexToAddress("0x1111111111111111111111111111111111111111"), Owner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Resolve(context.Background(), tc.account); got != tc.want {
				t.Fatalf("Resolve(%s) = %s, want %s", tc.account.Hex(), got, tc.want)
			}
		})
	}
}

func TestResolveDegradesToUser(t *testing.T) {
	r := NewResolver(&fakeReader{ownerErr: errors.New("rpc down")}, quietLogger())
	if got := r.Resolve(context.Background(), ownerAddr); got != User {
		t.Fatalf("expected user on owner failure, got %s", got)
	}
	r = NewResolver(&fakeReader{owner: ownerAddr, managersErr: errors.New("rpc down")}, quietLogger())
	if got := r.Resolve(context.Background(), managerAddr); got != User {
		t.Fatalf("expected user on manager failure, got %s", got)
	}
}

func TestResolveIsNotCached(t *testing.T) {
	reader := &fakeReader{owner: ownerAddr}
	r := NewResolver(reader, quietLogger())
	first := r.Resolve(context.Background(), managerAddr)
	reader.managers = []common.Address{managerAddr}
	second := r.Resolve(context.Background(), managerAddr)
	if first != User || second != FundManager {
		t.Fatalf("expected user then fundManager, got %s then %s", first, second)
	}
}

func TestParse(t *testing.T) {
	if Parse("owner") != Owner || Parse("fundManager") != FundManager || Parse("weird") != User {
		t.Fatal("unexpected parse result")
	}
	if !FundManager.CanManageTokens() || User.CanManageTokens() {
		t.Fatal("unexpected token management permissions")
	}
}
