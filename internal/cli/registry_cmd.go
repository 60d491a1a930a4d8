package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/xid"
)

func newRegistryCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "registry",
		Short: "manage the local owner and known-participant records",
	}
	root.AddCommand(newRegistryOwnerCommand())
	root.AddCommand(newRegistryParticipantCommand())
	return root
}

func newRegistryOwnerCommand() *cobra.Command {
	owner := &cobra.Command{Use: "owner", Short: "manage the local owner record"}
	owner.AddCommand(&cobra.Command{
		Use:   "set <signed-xid-ur>",
		Short: "set (or confirm) this registry's owner identity from a private signed-xid-ur",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xid.ParsePrivateDocumentUR(args[0])
			if err != nil {
				return err
			}
			if !doc.HasPrivateKeys() {
				return frosterr.New(frosterr.Configuration, "owner document carries no private key material")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if err := e.reg.SetOwner(doc); err != nil {
				return err
			}
			if err := e.reg.Save(); err != nil {
				return err
			}
			fmt.Println(doc.XID())
			return nil
		},
	})
	owner.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "generate a fresh owner identity and set it as this registry's owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xid.NewDocument()
			if err != nil {
				return frosterr.Wrap(frosterr.Cryptographic, err, "generate owner identity")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if err := e.reg.SetOwner(doc); err != nil {
				return err
			}
			if err := e.reg.Save(); err != nil {
				return err
			}
			privateUR, err := doc.ToPrivateUR()
			if err != nil {
				return err
			}
			publicUR, err := doc.ToUR()
			if err != nil {
				return err
			}
			fmt.Println("xid:", doc.XID())
			fmt.Println("private (keep this registry file secret):", privateUR)
			fmt.Println("public (share with peers for `registry participant add`):", publicUR)
			return nil
		},
	})
	return owner
}

func newRegistryParticipantCommand() *cobra.Command {
	participant := &cobra.Command{Use: "participant", Short: "manage known participant records"}
	participant.AddCommand(&cobra.Command{
		Use:   "add <signed-xid-ur> [pet-name]",
		Short: "record a participant's signed XID document, optionally under a pet name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xid.ParseDocumentUR(args[0])
			if err != nil {
				return err
			}
			petName := ""
			if len(args) == 2 {
				petName = args[1]
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if err := e.reg.AddParticipant(doc, petName); err != nil {
				return err
			}
			if err := e.reg.Save(); err != nil {
				return err
			}
			fmt.Println(doc.Public().XID())
			return nil
		},
	})
	return participant
}
