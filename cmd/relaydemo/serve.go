package main

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/result"
	"github.com/pkopriv2/relay/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	var pipelined bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs an upper-casing echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			conf, err := loadConfig(afero.NewOsFs(), configPath)
			if err != nil {
				return err
			}
			logger := common.NewStandardLogger(conf)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return errors.Wrap(err, "listening")
			}
			logger.Info("listening: addr=%v", ln.Addr())

			for {
				conn, err := ln.Accept()
				if err != nil {
					return errors.Wrap(err, "accepting connection")
				}
				logger.Info("accepted connection: remote=%v", conn.RemoteAddr())
				go serveConn(logger, conn, pipelined)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":7070", "address to listen on")
	cmd.Flags().BoolVar(&pipelined, "pipelined", false, "use the pipelined server instead of the serial one")
	return cmd
}

func serveConn(logger common.Logger, conn net.Conn, pipelined bool) {
	ch := channel.NewStream(conn)

	handler := func(ctx context.Context, slot *result.Handle[string], req string) {
		slot.Complete(strings.ToUpper(req))
	}

	desc := conn.RemoteAddr().String()
	if pipelined {
		server.NewPipelined[string, string](ch, handler, lineCodec{}, server.WithDescription(desc))
		return
	}
	server.NewSerial[string, string](ch, handler, lineCodec{}, server.WithDescription(desc))
}
