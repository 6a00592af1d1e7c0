package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ashureev/mirror-pond/internal/grpcserver"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running pond's gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := grpcserver.Dial(ctx, addr, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Check(ctx, service)
			if err != nil {
				return err
			}
			out, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(resp)
			if err != nil {
				return fmt.Errorf("encode health response: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:7778", "pond gRPC address")
	cmd.Flags().StringVar(&service, "service", grpcserver.ServiceName, "health service name")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and check timeout")
	return cmd
}
