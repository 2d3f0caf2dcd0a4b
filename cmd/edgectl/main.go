package main

import (
	"os"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/cmd/edgectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
