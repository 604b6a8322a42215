// confplan is a line-oriented JSON service for conference planning: it reads
// one request per stdin line and answers each with one JSON response line on
// stdout. Logs go to stderr so the wire stays clean.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
