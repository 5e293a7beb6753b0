package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/trajrun/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var intErr *cli.InterruptedError
		if errors.As(err, &intErr) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
