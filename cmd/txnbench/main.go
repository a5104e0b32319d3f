// Command txnbench drives configurable OLTP/OLAP transaction mixes
// against a SQL database through a pool of worker goroutines.
package main

import (
	"fmt"
	"os"

	"github.com/jpequegn/txnbench/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
