package main

import (
	"context"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/rpc"
	"github.com/urfave/cli/v3"
)

var swapCommands = []*cli.Command{
	{
		Name:  "submit",
		Usage: "Register a swap and get the hashlock to lock the source escrow with",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "Source chain", Required: true},
			&cli.StringFlag{Name: "to", Usage: "Destination chain", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Amount in whole units of the source asset", Required: true},
			&cli.StringFlag{Name: "beneficiary", Usage: "Address receiving funds on the destination chain", Required: true},
			&cli.StringFlag{Name: "initiator", Usage: "Address locking funds on the source chain"},
			&cli.DurationFlag{Name: "timelock", Usage: "Source escrow lifetime, the daemon default when unset"},
		},
		Action: withClient(func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error) {
			return client.SubmitSwap(ctx, &rpc.SubmitSwapRequest{
				SourceChain:        cmd.String("from"),
				DestinationChain:   cmd.String("to"),
				Amount:             cmd.String("amount"),
				BeneficiaryAddress: cmd.String("beneficiary"),
				InitiatorAddress:   cmd.String("initiator"),
				TimelockSeconds:    int64(cmd.Duration("timelock") / time.Second),
			})
		}),
	},
	{
		Name:  "status",
		Usage: "Show the status of a swap",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Swap id", Required: true},
		},
		Action: withClient(func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error) {
			return client.GetSwapStatus(ctx, &rpc.GetSwapStatusRequest{SwapID: cmd.String("id")})
		}),
	},
	{
		Name:  "reveal",
		Usage: "Reveal the secret of a locked swap",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Swap id", Required: true},
			&cli.StringFlag{Name: "secret", Usage: "Hex encoded secret", Required: true},
		},
		Action: withClient(func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error) {
			return client.RevealSecret(ctx, &rpc.RevealSecretRequest{
				SwapID: cmd.String("id"),
				Secret: cmd.String("secret"),
			})
		}),
	},
	{
		Name:  "quote",
		Usage: "Quote the counter amount of a swap",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "Source chain", Required: true},
			&cli.StringFlag{Name: "to", Usage: "Destination chain", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Amount in whole units of the source asset", Required: true},
		},
		Action: withClient(func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error) {
			return client.GetQuote(ctx, &rpc.GetQuoteRequest{
				SourceChain:      cmd.String("from"),
				DestinationChain: cmd.String("to"),
				Amount:           cmd.String("amount"),
			})
		}),
	},
	{
		Name:  "list",
		Usage: "List the swaps of an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "Initiator or beneficiary address", Required: true},
			&cli.IntFlag{Name: "offset", Usage: "Swaps to skip"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum swaps returned", Value: 50},
		},
		Action: withClient(func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error) {
			return client.ListSwaps(ctx, &rpc.ListSwapsRequest{
				Account: cmd.String("account"),
				Offset:  int(cmd.Int("offset")),
				Limit:   int(cmd.Int("limit")),
			})
		}),
	},
}

// withClient dials the daemon, runs call and prints its response as JSON.
func withClient(call func(ctx context.Context, cmd *cli.Command, client rpc.RelayerServiceClient) (any, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		port, err := validatePort(cmd.Int("grpc-port"))
		if err != nil {
			return err
		}
		client, closeConn, err := rpc.NewRPCClient(cmd.String("host"), port)
		if err != nil {
			return err
		}
		defer closeConn()

		resp, err := call(ctx, cmd, client)
		if err != nil {
			return err
		}
		out, err := rpc.MarshalIndent(resp)
		if err != nil {
			return err
		}
		fmt.Println(out)

		return nil
	}
}
