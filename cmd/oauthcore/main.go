// Command oauthcore serves OAuth sign-in endpoints and manages their schema.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
