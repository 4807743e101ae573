package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/issuer"
)

type keyOutput struct {
	Path      string     `json:"path"`
	Version   string     `json:"version"`
	KeyID     uint32     `json:"key_id"`
	PublicKey string     `json:"public_key"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

func newKeygenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an issuer signing key",
		Long: `Generate an issuer signing key and write it as a PEM file.

The committed form of the public key is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersionFlag(v.GetString("keygen.version"))
			if err != nil {
				return err
			}
			out := v.GetString("keygen.out")
			if out == "" {
				return errors.New("--out is required")
			}

			var expiry time.Time
			if d := v.GetDuration("keygen.expires"); d > 0 {
				expiry = time.Now().Add(d).Truncate(time.Second)
			}

			key, err := issuer.GenerateKey(version, v.GetUint32("keygen.id"), expiry)
			if err != nil {
				return err
			}
			if err := issuer.WriteKeyFile(out, key); err != nil {
				return err
			}

			res := keyOutput{
				Path:      out,
				Version:   version.String(),
				KeyID:     key.ID(),
				PublicKey: crypto.ToBase64(key.PublicKey()),
			}
			if !expiry.IsZero() {
				res.Expiry = &expiry
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	flags := cmd.Flags()
	flags.String("version", "voprf", "Protocol version: voprf, blindrsa or a wire name")
	flags.Uint32("id", 1, "Key ID")
	flags.Duration("expires", 0, "Key lifetime; 0 means the key never expires")
	flags.StringP("out", "o", "", "Path of the PEM file to write")
	for _, name := range []string{"version", "id", "expires", "out"} {
		_ = v.BindPFlag("keygen."+name, flags.Lookup(name))
	}
	return cmd
}
