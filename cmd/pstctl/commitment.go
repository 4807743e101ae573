package main

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/privatestate/attribution-go/issuer"
)

func newCommitmentCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commitment KEYFILE...",
		Short: "Print the key commitment document for signing keys",
		Long: `Print the key commitment document an issuer serving the given
signing keys publishes at /.well-known/private-state-token/key-commitment.
Expired keys are left out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin := v.GetString("commitment.origin")
			if origin == "" {
				return errors.New("--origin is required")
			}
			keys, err := issuer.LoadKeyFiles(args...)
			if err != nil {
				return err
			}
			iss, err := issuer.New(origin, keys, issuer.WithCommitmentID(v.GetInt("commitment.id")))
			if err != nil {
				return err
			}
			doc, err := iss.CommitmentJSON()
			if err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, doc, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("origin", "", "Issuer origin, for example https://issuer.example")
	flags.Int("id", 1, "Commitment id")
	for _, name := range []string{"origin", "id"} {
		_ = v.BindPFlag("commitment."+name, flags.Lookup(name))
	}
	return cmd
}
