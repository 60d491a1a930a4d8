package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/dkgengine"
)

func newDKGCommand() *cobra.Command {
	root := &cobra.Command{Use: "dkg", Short: "distributed key generation (spec §4.4)"}
	root.AddCommand(newDKGCoordinatorCommand())
	root.AddCommand(newDKGParticipantCommand())
	return root
}

func newDKGCoordinatorCommand() *cobra.Command {
	root := &cobra.Command{Use: "coordinator", Short: "run the coordinator side of a DKG group"}

	inviteGroup := &cobra.Command{Use: "invite", Short: "send a dkgInvite to a set of participants and start a new group"}
	var threshold int
	var charter string
	var preview bool
	inviteSend := &cobra.Command{
		Use:   "send <peer-ref>...",
		Short: "send a dkgInvite to a set of participants and start a new group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &dkgengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			groupID, inviteARID, err := c.InviteSend(background(), charter, threshold, args, preview)
			if err != nil {
				return err
			}
			fmt.Println("group:", groupID)
			fmt.Println("invite:", inviteARID)
			return nil
		},
	}
	inviteSend.Flags().IntVarP(&threshold, "threshold", "t", 2, "minimum signers required to reconstruct the group key")
	inviteSend.Flags().StringVar(&charter, "charter", "", "human-readable description of this group's purpose")
	inviteSend.Flags().BoolVar(&preview, "preview", false, "print the signed-plaintext envelope instead of posting it; no state is mutated")
	inviteGroup.AddCommand(inviteSend)
	root.AddCommand(inviteGroup)

	var groupRef string
	round1 := &cobra.Command{
		Use:   "round1",
		Short: "collect round-1 packages from every invited participant and dispatch round-2",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(groupRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &dkgengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			if err := c.Round1(background(), groupID); err != nil {
				return err
			}
			fmt.Println("round1 collected for group:", groupID)
			return nil
		},
	}
	round1.Flags().StringVar(&groupRef, "group", "", "group id (ur:arid)")
	_ = round1.MarkFlagRequired("group")
	root.AddCommand(round1)

	round2 := &cobra.Command{
		Use:   "round2",
		Short: "collect round-2 bundles from every participant and dispatch finalize",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(groupRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &dkgengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			if err := c.Round2(background(), groupID); err != nil {
				return err
			}
			fmt.Println("round2 collected for group:", groupID)
			return nil
		},
	}
	round2.Flags().StringVar(&groupRef, "group", "", "group id (ur:arid)")
	_ = round2.MarkFlagRequired("group")
	root.AddCommand(round2)

	finalize := &cobra.Command{
		Use:   "finalize",
		Short: "collect key packages from every participant and record the group verifying key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(groupRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &dkgengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			if err := c.Finalize(background(), groupID); err != nil {
				return err
			}
			gr := e.reg.Groups[groupID]
			fmt.Println("verifying key:", fmt.Sprintf("%x", gr.VerifyingKey))
			return nil
		},
	}
	finalize.Flags().StringVar(&groupRef, "group", "", "group id (ur:arid)")
	_ = finalize.MarkFlagRequired("group")
	root.AddCommand(finalize)

	return root
}

func newDKGParticipantCommand() *cobra.Command {
	root := &cobra.Command{Use: "participant", Short: "run the participant side of a DKG group"}

	inviteGroup := &cobra.Command{Use: "invite", Short: "respond to a dkgInvite"}
	var reject string
	inviteRespond := &cobra.Command{
		Use:   "respond <invite-arid>",
		Short: "fetch and respond to a dkgInvite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inviteARID, err := arid.Parse(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &dkgengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			groupID, err := p.InviteRespond(background(), inviteARID, reject == "", reject)
			if err != nil {
				return err
			}
			fmt.Println("group:", groupID)
			return nil
		},
	}
	inviteRespond.Flags().StringVar(&reject, "reject", "", "reject the invite with this reason instead of accepting")
	inviteGroup.AddCommand(inviteRespond)
	root.AddCommand(inviteGroup)

	round2Group := &cobra.Command{Use: "round2", Short: "respond to a dkgRound2 request"}
	var round2GroupRef string
	round2Respond := &cobra.Command{
		Use:   "respond",
		Short: "respond to a dkgRound2 request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(round2GroupRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &dkgengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			if err := p.Round2Respond(background(), groupID); err != nil {
				return err
			}
			fmt.Println("round2 responded for group:", groupID)
			return nil
		},
	}
	round2Respond.Flags().StringVar(&round2GroupRef, "group", "", "group id (ur:arid)")
	_ = round2Respond.MarkFlagRequired("group")
	round2Group.AddCommand(round2Respond)
	root.AddCommand(round2Group)

	finalizeGroup := &cobra.Command{Use: "finalize", Short: "respond to a dkgFinalize request"}
	var finalizeGroupRef string
	finalizeRespond := &cobra.Command{
		Use:   "respond",
		Short: "respond to a dkgFinalize request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(finalizeGroupRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &dkgengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			if err := p.FinalizeRespond(background(), groupID); err != nil {
				return err
			}
			fmt.Println("finalize responded for group:", groupID)
			return nil
		},
	}
	finalizeRespond.Flags().StringVar(&finalizeGroupRef, "group", "", "group id (ur:arid)")
	_ = finalizeRespond.MarkFlagRequired("group")
	finalizeGroup.AddCommand(finalizeRespond)
	root.AddCommand(finalizeGroup)

	return root
}
