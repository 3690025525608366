// This program mines a local chain interactively and exposes the hashing
// primitives from the command line.
package main

import "github.com/ardanlabs/merklechain/app/tooling/chain/cmd"

func main() {
	cmd.Execute()
}
