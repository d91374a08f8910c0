package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/farbook-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/farbook-go/internal/services"
	"github.com/Layr-Labs/farbook-go/pkg/config"
	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/Layr-Labs/farbook-go/pkg/hubMessage"
	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
)

func main() {
	defaults := config.NewDefaultServerConfig()

	app := &cli.App{
		Name:  "farbook-client",
		Usage: "Authorize a Farbook signer from the terminal",
		Description: `Runs the signer connect flow without a browser.

This client can:
- Create a signer request and print its QR code for the Warpcast app
- Wait for approval and submit the signed message to a hub
- Generate a signer key pair
- Decode a base64 signed hub message`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvFarbookVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Connect a new signer, wait for approval and submit it to the hub",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app-name",
						Value:   defaults.AppName,
						Usage:   "Signer request name",
						EnvVars: []string{config.EnvFarbookAppName},
					},
					&cli.StringFlag{
						Name:    "signer-request-url",
						Usage:   "Signer request endpoint, required",
						EnvVars: []string{config.EnvFarbookSignerRequestURL},
					},
					&cli.StringFlag{
						Name:    "warpcast-api-url",
						Value:   defaults.WarpcastAPIURL,
						Usage:   "Warpcast API base URL",
						EnvVars: []string{config.EnvFarbookWarpcastAPIURL},
					},
					&cli.StringFlag{
						Name:    "hub-address",
						Aliases: []string{"hub"},
						Value:   defaults.HubAddress,
						Usage:   "Hub gRPC endpoint (host:port)",
						EnvVars: []string{config.EnvFarbookHubAddress},
					},
					&cli.BoolFlag{
						Name:    "hub-insecure",
						Usage:   "Connect to the hub without TLS",
						EnvVars: []string{config.EnvFarbookHubInsecure},
					},
					&cli.DurationFlag{
						Name:    "poll-interval",
						Value:   defaults.Poll.Interval,
						Usage:   "Wait before each approval poll",
						EnvVars: []string{config.EnvFarbookPollInterval},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up waiting for approval after this long (0 waits forever)",
					},
					&cli.BoolFlag{
						Name:  "no-submit",
						Usage: "Stop once the signer is approved",
					},
				},
				Action: connectCommand,
			},
			{
				Name:   "keygen",
				Usage:  "Generate a signer key pair and print the public key",
				Action: keygenCommand,
			},
			{
				Name:      "decode",
				Usage:     "Decode a base64 signed hub message",
				ArgsUsage: "<base64-message>",
				Action:    decodeCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func connectCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := config.NewDefaultServerConfig()
	cfg.AppName = c.String("app-name")
	cfg.SignerRequestURL = c.String("signer-request-url")
	cfg.WarpcastAPIURL = c.String("warpcast-api-url")
	cfg.HubAddress = c.String("hub-address")
	cfg.HubInsecure = c.Bool("hub-insecure")
	cfg.Poll.Interval = c.Duration("poll-interval")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := services.NewServices(cfg, nil, l)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := svc.Flow.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	qr, err := qrcode.New(snap.QRPayload, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}

	fmt.Printf("Public key: %s\n\n", snap.PublicKey)
	fmt.Println(qr.ToSmallString(false))
	fmt.Printf("Scan with Warpcast or open: %s\n", snap.QRPayload)
	fmt.Println("Waiting for approval...")

	waitCtx := ctx
	if timeout := c.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	snap, err = svc.Flow.WaitForState(waitCtx, connectFlow.StateApproved, connectFlow.StateIdle)
	if err != nil {
		return fmt.Errorf("stopped waiting for approval: %w", err)
	}
	if snap.State != connectFlow.StateApproved {
		return fmt.Errorf("signer request was not approved")
	}
	fmt.Printf("Signer approved for fid %d\n", snap.Fid)

	if c.Bool("no-submit") {
		return nil
	}

	snap, err = svc.Flow.Submit(ctx)
	if err != nil {
		return fmt.Errorf("failed to submit to hub: %w", err)
	}
	fmt.Printf("Signed message submitted to %s (%s)\n", cfg.HubAddress, snap.State)
	return nil
}

func keygenCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	key, err := localKeyGenerator.NewLocalKeyGenerator(l).GenerateKeyPair(c.Context)
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}
	defer key.KeyPair.Zero()

	pubHex, err := key.GetPublicKeyHex()
	if err != nil {
		return err
	}
	fmt.Printf("Key ID:     %s\n", key.KeyId)
	fmt.Printf("Public key: %s\n", pubHex)
	return nil
}

func decodeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one base64 message argument")
	}

	msg, err := hubMessage.DecodeBase64(c.Args().First())
	if err != nil {
		return err
	}

	if msg.Data != nil {
		fmt.Printf("Type:      %s\n", msg.Data.Type)
		fmt.Printf("Fid:       %d\n", msg.Data.Fid)
		fmt.Printf("Timestamp: %s\n", msg.Data.Time().UTC().Format(time.RFC3339))
		fmt.Printf("Network:   %d\n", msg.Data.Network)
	}
	fmt.Printf("Hash:      %s\n", hexutil.Encode(msg.Hash))
	fmt.Printf("Signer:    %s\n", hexutil.Encode(msg.Signer))
	fmt.Printf("Signature: %d bytes\n", len(msg.Signature))
	return nil
}
