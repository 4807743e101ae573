package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	attribution "github.com/privatestate/attribution-go"
)

type verifyOutput struct {
	Issuer   string `json:"issuer"`
	ReportID string `json:"report_id"`
	Version  string `json:"version"`
	Header   string `json:"redemption_header"`
	Redeemed *bool  `json:"redeemed,omitempty"`
	KeyID    uint32 `json:"key_id,omitempty"`
	FailedAt string `json:"failed_at,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one verification cycle against an issuer",
		Long: `Fetch the issuer's key commitment, send one issuance request and
print the resulting redemption header. With --redeem the token is also
presented to the issuer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuerURL := v.GetString("verify.issuer")
			if issuerURL == "" {
				return errors.New("--issuer is required")
			}
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			opts := []attribution.ClientOption{
				attribution.WithClientLogger(logger),
				attribution.WithRetries(v.GetInt("verify.retries")),
			}
			if path := v.GetString("verify.cache"); path != "" {
				opts = append(opts, attribution.WithCachePath(path))
			}

			ctx := cmd.Context()
			client, err := attribution.NewClient(ctx, issuerURL, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			ver, verr := client.Verify(ctx, v.GetString("verify.context"))
			out := verifyOutput{Issuer: client.IssuerURL()}
			if ver != nil {
				out.ReportID = ver.ReportID
				out.Version = ver.Version.String()
				out.Header = ver.Header
			}
			if verr == nil && v.GetBool("verify.redeem") {
				res, rerr := client.Redeem(ctx, ver)
				if rerr == nil {
					out.Redeemed = &res.Redeemed
					out.KeyID = res.KeyID
				}
				verr = rerr
			}
			if verr != nil {
				out.Error = verr.Error()
				if stage, ok := attribution.FailedStage(verr); ok {
					out.FailedAt = string(stage)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			return verr
		},
	}

	flags := cmd.Flags()
	flags.String("issuer", "", "Issuer base URL")
	flags.String("context", "", "Request context the message is derived from; random when empty")
	flags.Bool("redeem", false, "Redeem the token after issuance")
	flags.String("cache", "", "LevelDB directory caching key commitments")
	flags.Int("retries", 0, "Retries per issuer request; 0 keeps the default")
	for _, name := range []string{"issuer", "context", "redeem", "cache", "retries"} {
		_ = v.BindPFlag("verify."+name, flags.Lookup(name))
	}
	return cmd
}
