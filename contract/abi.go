package contract

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	//go:embed abi/blockcoop.json
	blockcoopJSON []byte
	//go:embed abi/erc20.json
	erc20JSON []byte

	abiOnce      sync.Once
	blockcoopABI abi.ABI
	erc20ABI     abi.ABI
)

func loadABIs() {
	abiOnce.Do(func() {
		blockcoopABI = mustParse("blockcoop", blockcoopJSON)
		erc20ABI = mustParse("erc20", erc20JSON)
	})
}

func mustParse(name string, raw []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contract: parse embedded %s abi: %v", name, err))
	}
	return parsed
}

// BlockCoopABI returns the parsed interface of the lending contract.
func BlockCoopABI() abi.ABI {
	loadABIs()
	return blockcoopABI
}

// ERC20ABI returns the parsed ERC-20 interface.
func ERC20ABI() abi.ABI {
	loadABIs()
	return erc20ABI
}
