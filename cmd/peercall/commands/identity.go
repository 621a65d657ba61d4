package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opd-ai/peercall"
	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new identity and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.DataDir, peercall.DefaultDatabaseFile)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("database already exists: %s", path)
			}

			opts := config.Options()
			opts.Username = name
			p, err := peercall.New(opts)
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "Created %s\nPublic key: %s\n", path, crypto.FormatPublicKey(p.PublicKey()))
			return nil
		},
	}
	hostname, _ := os.Hostname()
	cmd.Flags().StringVar(&name, "name", hostname, "Name shown to contacts")
	return cmd
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the own contact as JSON for sharing",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}
			own, err := p.OwnContact()
			if err != nil {
				return err
			}
			data, err := database.ExportContact(own)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", data)
			return nil
		},
	}
}
