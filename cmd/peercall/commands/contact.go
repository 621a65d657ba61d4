package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/spf13/cobra"
)

func newContactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage contacts",
	}
	cmd.AddCommand(
		newContactAddCmd(),
		newContactImportCmd(),
		newContactListCmd(),
		newContactRemoveCmd(),
		newContactBlockCmd(true),
		newContactBlockCmd(false),
	)
	return cmd
}

func newContactAddCmd() *cobra.Command {
	var addresses []string
	cmd := &cobra.Command{
		Use:   "add NAME PUBLIC_KEY",
		Short: "Add a contact by name and hex public key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.ParsePublicKey(args[1])
			if err != nil {
				return err
			}
			return addContact(cmd.OutOrStdout(), database.Contact{
				Name:      args[0],
				PublicKey: key,
				Addresses: addresses,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&addresses, "address", "a", nil, "Address to dial, repeatable")
	return cmd
}

func newContactImportCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add a contact from JSON shared with \"peercall id\" (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			c, err := database.ImportContact(data)
			if err != nil {
				return err
			}
			if name != "" {
				c.Name = name
			}
			return addContact(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Override the contact name")
	return cmd
}

func addContact(out io.Writer, c database.Contact) error {
	p, err := openInstance()
	if err != nil {
		return err
	}
	if err := p.Database().AddContact(c); err != nil {
		return err
	}
	if err := p.Save(); err != nil {
		return err
	}
	printf(out, "Added %s\n", strings.TrimSpace(c.Name))
	return nil
}

func newContactListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(w, "NAME\tPUBLIC KEY\tADDRESSES\tBLOCKED\n")
			for _, c := range p.Database().Contacts() {
				printf(w, "%s\t%s\t%s\t%v\n", c.Name, crypto.FormatPublicKey(c.PublicKey),
					strings.Join(c.DialOrder(), ","), c.Blocked)
			}
			return w.Flush()
		},
	}
}

func newContactRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a contact; call history is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}
			c, ok := p.Database().ContactByName(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", database.ErrContactNotFound, args[0])
			}
			if err := p.Database().RemoveContact(c.PublicKey); err != nil {
				return err
			}
			if err := p.Save(); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %s\n", c.Name)
			return nil
		},
	}
}

func newContactBlockCmd(block bool) *cobra.Command {
	use, short := "block NAME", "Block calls from a contact"
	if !block {
		use, short = "unblock NAME", "Unblock a contact"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}
			c, ok := p.Database().ContactByName(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", database.ErrContactNotFound, args[0])
			}
			if err := p.Database().SetBlocked(c.PublicKey, block); err != nil {
				return err
			}
			return p.Save()
		},
	}
}
