// Command predictctl is a terminal client for a running predictboard server.
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
