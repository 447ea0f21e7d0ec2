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
			fmt.Fprintln(os.Stderr, "usage: openhouse setup [--backend google|xlsx|memory] [--force]")
			fmt.Fprintln(os.Stderr, "       openhouse run")
			fmt.Fprintln(os.Stderr, "       openhouse addresses list|import")
			fmt.Fprintln(os.Stderr, "       openhouse hash-password | backup | watch")
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
