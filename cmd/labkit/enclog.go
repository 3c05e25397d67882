// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"github.com/spf13/cobra"

	"labkit/pkg/enclog"
)

// newEnclogCommand creates the `labkit enclog` command tree.
func newEnclogCommand(app *App) *cobra.Command {
	var keyFile string

	enclogCmd := &cobra.Command{
		Use:   "enclog",
		Short: "Work with encrypted log files",
		Long: `Work with encrypted log files.

Log records are encrypted with a Fernet key and written as
'enclogdata:<token>' payloads. These commands generate keys and decrypt
existing or growing log files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	enclogCmd.PersistentFlags().StringVar(&keyFile, "key-file", "",
		"file holding the base64 Fernet key (default from config enclog.key_file)")

	enclogCmd.AddCommand(&cobra.Command{
		Use:   "genkey",
		Short: "Generate a new Fernet key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := enclog.GenKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, key.Encode())
			return nil
		},
	})

	enclogCmd.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Emit a sample encrypted record with a fresh key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := enclog.GenKey()
			if err != nil {
				return err
			}

			logger := enclog.NewLogger(log.New(app.stderr), key)
			logger.Info(`{"user":"Jane Xi"}`)

			fmt.Fprintf(app.stdout, "%s: %s\n", PkgStyle.Render("key"), key.Encode())
			fmt.Fprintln(app.stdout, SubtitleStyle.Render("decrypt the record above with: labkit enclog open --key-file <file>"))
			return nil
		},
	})

	enclogCmd.AddCommand(&cobra.Command{
		Use:   "open <file>",
		Short: "Decrypt a log file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveKey(cmd.Context(), app, keyFile)
			if err != nil {
				return err
			}
			return enclog.OpenFile(args[0], key, app.stdout)
		},
	})

	enclogCmd.AddCommand(&cobra.Command{
		Use:   "tailf <file>",
		Short: "Follow a growing log file, decrypting new records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveKey(cmd.Context(), app, keyFile)
			if err != nil {
				return err
			}
			return enclog.Tail(cmd.Context(), args[0], key, app.stdout, enclog.DefaultTailInterval)
		},
	})

	return enclogCmd
}

// resolveKey loads the Fernet key from the --key-file flag or, when unset,
// from the enclog.key_file config entry.
func resolveKey(ctx context.Context, app *App, keyFile string) (*fernet.Key, error) {
	if keyFile == "" {
		cfg, err := app.loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		keyFile = cfg.Enclog.KeyFile
	}
	if keyFile == "" {
		return nil, fmt.Errorf("no Fernet key: pass --key-file or set enclog.key_file in the config")
	}

	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return enclog.ParseKey(strings.TrimSpace(string(raw)))
}
