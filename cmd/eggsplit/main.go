// Package main is the eggsplit command: it splits a tray scan into one volume per egg.
package main

import (
	"fmt"
	"os"

	"eggsplit/internal/models"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eggsplit: %s: %v\n", models.KindOf(err), err)
		os.Exit(1)
	}
}
