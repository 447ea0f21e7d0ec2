package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/openhouse/internal/openhousecli"
)

func main() {
	if err := openhousecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, openhousecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			openhousecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
