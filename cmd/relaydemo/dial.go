package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pkopriv2/relay/backoff"
	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/client"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/supervisor"
)

func newDialCmd() *cobra.Command {
	var addr string
	var pipelined bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Sends lines from stdin to a relaydemo server and prints the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			conf, err := loadConfig(afero.NewOsFs(), configPath)
			if err != nil {
				return err
			}
			logger := common.NewStandardLogger(conf)

			policy := backoff.NewFromConfig(conf, "relay.backoff.base", "relay.backoff.cap", backoff.DefaultBase, backoff.DefaultCap)

			sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
				conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
				if err != nil {
					return nil, errors.Wrap(err, "dialing")
				}
				return channel.NewStream(conn), nil
			},
				supervisor.WithDescription(addr),
				supervisor.WithLogger(logger),
				supervisor.WithBackoff(policy),
			)
			defer sup.Shutdown()

			return runPrompt(sup, pipelined, timeout, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:7070", "server address to dial")
	cmd.Flags().BoolVar(&pipelined, "pipelined", false, "use the pipelined client instead of the serial one")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	return cmd
}

// runPrompt reads lines from stdin and sends each through whichever
// client flavor was requested, printing the reply or the failure.
func runPrompt(sup *supervisor.Supervisor, pipelined bool, timeout time.Duration, logger common.Logger) error {
	var send func(ctx context.Context, line string) (string, error)
	var closeClient func() error

	if pipelined {
		c := client.NewPipelined[string, string](sup, lineCodec{})
		send = func(ctx context.Context, line string) (string, error) {
			return c.Request(ctx, line, timeout).Wait(ctx)
		}
		closeClient = c.Close
	} else {
		c := client.NewSerial[string, string](sup, lineCodec{})
		send = func(ctx context.Context, line string) (string, error) {
			return c.Request(ctx, line, timeout).Wait(ctx)
		}
		closeClient = c.Close
	}
	defer closeClient()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
		resp, err := send(ctx, line)
		cancel()
		if err != nil {
			logger.Warn("request failed: err=%v", err)
			continue
		}
		fmt.Println(resp)
	}
	return scanner.Err()
}
