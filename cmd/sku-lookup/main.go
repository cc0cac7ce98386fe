// Package main is the entry point for the sku-lookup service and CLI.
package main

import (
	"os"

	"github.com/maltedev/storefront-sku-lookup/cmd/sku-lookup/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
