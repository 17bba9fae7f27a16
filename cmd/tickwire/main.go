// Command tickwire runs a small echo server and client on top of the
// tickwire networking layer.
//
// Start a server, then send it a few packets:
//
//	tickwire serve --port 9002 --metrics-addr :9100
//	tickwire send --port 9001 --to 127.0.0.1:9002 --count 3 --data hello
//
// Every flag can also be set through a TICKWIRE_<FLAG> environment
// variable or a .env file in the working directory.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
