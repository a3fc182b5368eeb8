package main

import (
	"os"

	"github.com/chargeq/chargeq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
