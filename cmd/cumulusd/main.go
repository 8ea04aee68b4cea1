// Command cumulusd runs one machine's slice of the cumulus scheduler
// core: the priority and CPU-assignment dependency graphs, the worker
// pool draining them, and the checksummed log backing durable state.
package main

import "github.com/fora-lang/cumulus/cmd/cumulusd/cmd"

func main() {
	cmd.Execute()
}
