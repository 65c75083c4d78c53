package main

import (
	"encoding/json"
	"fmt"

	"github.com/shruggr/rewardledger/wallet"
	"github.com/urfave/cli/v2"
)

var jsonFlag = cli.BoolFlag{
	Name:  "json",
	Usage: "print output as JSON",
}

var Keygen = cli.Command{
	Action: keygen,
	Name:   "keygen",
	Usage:  "generates a secp256k1 key pair and its address",
	Flags: []cli.Flag{
		&jsonFlag,
	},
}

var Address = cli.Command{
	Action:    address,
	Name:      "address",
	Usage:     "derives the address of a public or private key",
	ArgsUsage: "<public key hex>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "private",
			Usage: "derive from this private key instead",
		},
	},
}

func keygen(context *cli.Context) error {
	kp, err := wallet.GenerateKeyPair()
	if err != nil {
		return err
	}
	return printKeyPair(context, kp)
}

func address(context *cli.Context) error {
	if priv := context.String("private"); priv != "" {
		kp, err := wallet.KeyPairFromPrivate(priv)
		if err != nil {
			return err
		}
		fmt.Fprintln(context.App.Writer, kp.Address)
		return nil
	}

	if context.Args().Len() != 1 {
		return fmt.Errorf("missing public key")
	}
	pub := context.Args().Get(0)
	if _, err := wallet.ParsePublicKey(pub); err != nil {
		return err
	}
	addr, err := wallet.DeriveAddressHex(pub)
	if err != nil {
		return err
	}

	fmt.Fprintln(context.App.Writer, addr)
	return nil
}

func printKeyPair(context *cli.Context, kp *wallet.KeyPair) error {
	if context.Bool(jsonFlag.Name) {
		enc := json.NewEncoder(context.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"address":    kp.Address.String(),
			"publicKey":  kp.PublicKey,
			"privateKey": kp.PrivateKey,
		})
	}

	fmt.Fprintf(context.App.Writer, "address:     %s\n", kp.Address)
	fmt.Fprintf(context.App.Writer, "public key:  %s\n", kp.PublicKey)
	fmt.Fprintf(context.App.Writer, "private key: %s\n", kp.PrivateKey)
	return nil
}
