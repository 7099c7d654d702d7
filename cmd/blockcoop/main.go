package main

import (
	"fmt"
	"os"

	"blockcoop/contract"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", contract.Describe(err))
		os.Exit(1)
	}
}
