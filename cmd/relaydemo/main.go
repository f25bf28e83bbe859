// Command relaydemo exercises the reconnecting request/response core end
// to end over real TCP sockets: "serve" runs an echo server, "dial" runs a
// client against it that keeps sending requests even if the server is
// bounced out from under it. Grounded on net/server.go and net/tcp.go's
// own demo-grade main wiring, replacing their fixed protocol with this
// module's generic client/server pair.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relaydemo",
		Short: "Demonstrates the relay reconnecting client/server core over TCP",
	}

	root.PersistentFlags().String("config", "relaydemo.yaml", "path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDialCmd())
	return root
}
