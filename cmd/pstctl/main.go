// Command pstctl manages issuer signing keys and runs verification cycles
// against live issuers.
//
//	pstctl keygen --version voprf --id 1 --out key1.pem
//	pstctl commitment --origin https://issuer.example key1.pem
//	pstctl verify --issuer https://issuer.example --redeem
//
// Flags can also be set from PSTCTL_* environment variables, read from the
// process environment or a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/logging"
	"github.com/privatestate/attribution-go/protocol"
)

// EnvPrefix is the prefix of environment variables read by pstctl.
const EnvPrefix = "PSTCTL"

// Config holds the I/O streams of a run.
type Config struct {
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns the process streams.
func DefaultConfig() Config {
	return Config{Stdout: os.Stdout, Stderr: os.Stderr}
}

func main() {
	if err := run(os.Args, DefaultConfig()); err != nil {
		os.Exit(1)
	}
}

func run(args []string, cfg Config) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	root := newRootCmd(viper.New())
	root.SetOut(cfg.Stdout)
	root.SetErr(cfg.Stderr)
	root.SetArgs(args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "pstctl",
		Short:        "Private State Token attribution verification tool",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newKeygenCmd(v), newCommitmentCmd(v), newVerifyCmd(v))
	return root
}

// newLogger builds a console logger on stderr.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Service:     "pstctl",
		Level:       v.GetString("log-level"),
		Development: true,
	})
}

// parseVersionFlag accepts a wire name or one of the short names "voprf"
// and "blindrsa".
func parseVersionFlag(s string) (protocol.Version, error) {
	switch strings.ToLower(s) {
	case "voprf":
		return protocol.VersionPrivateStateTokenV1VOPRF, nil
	case "blindrsa", "rsa":
		return protocol.VersionPrivateStateTokenV1BlindRSA, nil
	}
	v, err := protocol.ParseVersion(s)
	if err != nil {
		return protocol.VersionUnknown, fmt.Errorf("--version: %w", err)
	}
	return v, nil
}
