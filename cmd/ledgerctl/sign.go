package main

import (
	"fmt"

	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/wallet"
	"github.com/urfave/cli/v2"
)

var Sign = cli.Command{
	Action:    sign,
	Name:      "sign",
	Usage:     "signs a transaction signing hash returned by the build endpoint",
	ArgsUsage: "<signing hash hex>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Usage:    "private key hex",
			Required: true,
			EnvVars:  []string{"LEDGER_PRIVATE_KEY"},
		},
	},
}

var Verify = cli.Command{
	Action:    verify,
	Name:      "verify",
	Usage:     "checks a DER signature over a signing hash",
	ArgsUsage: "<signing hash hex> <signature hex> <public key hex>",
}

func sign(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing signing hash")
	}

	hash, err := transaction.ParseHash(context.Args().Get(0))
	if err != nil {
		return err
	}

	kp, err := wallet.KeyPairFromPrivate(context.String("key"))
	if err != nil {
		return err
	}

	sig, err := wallet.Sign(hash, kp.PrivateKey)
	if err != nil {
		return err
	}

	fmt.Fprintf(context.App.Writer, "signature:  %s\n", sig)
	fmt.Fprintf(context.App.Writer, "public key: %s\n", kp.PublicKey)
	return nil
}

func verify(context *cli.Context) error {
	if context.Args().Len() != 3 {
		return fmt.Errorf("expected signing hash, signature and public key")
	}

	hash, err := transaction.ParseHash(context.Args().Get(0))
	if err != nil {
		return err
	}

	if !wallet.Verify(hash, context.Args().Get(1), context.Args().Get(2)) {
		return fmt.Errorf("signature is invalid")
	}

	fmt.Fprintln(context.App.Writer, "signature is valid")
	return nil
}
