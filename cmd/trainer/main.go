// Command trainer selects, gates and persists the best regression model for
// a pair of pre-split CSV arrays.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
