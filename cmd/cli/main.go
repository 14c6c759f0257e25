package main

import (
	"os"

	"github.com/ipd-simulator/cmd/cli/cmd"
	"github.com/ipd-simulator/pkg/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.GetErrorCode(err) == errors.CodeConfigInvalid {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
