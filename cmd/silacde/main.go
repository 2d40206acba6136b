// silacde - SILAC differential protein abundance
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/silacde/cmd/silacde/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
