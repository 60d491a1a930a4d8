package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/signengine"
)

func newSignCommand() *cobra.Command {
	root := &cobra.Command{Use: "sign", Short: "threshold signing over an already-finalized DKG group (spec §4.5)"}
	root.AddCommand(newSignCoordinatorCommand())
	root.AddCommand(newSignParticipantCommand())
	return root
}

// loadTarget reads the --target argument, which may be either an
// inline "ur:envelope/..." string or a path to a file whose bytes
// become a fresh envelope's subject.
func loadTarget(ref string) (*envelope.Envelope, error) {
	if env, err := envelope.FromUR(ref); err == nil {
		return env, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read target %q: %w", ref, err)
	}
	return envelope.NewSubject(envelope.NewBytes(data)), nil
}

func newSignCoordinatorCommand() *cobra.Command {
	root := &cobra.Command{Use: "coordinator", Short: "run the coordinator side of a signing session"}

	var groupRef, target string
	var preview bool
	invite := &cobra.Command{
		Use:   "invite <peer-ref>...",
		Short: "send a signInvite naming a target envelope to a set of signers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(groupRef)
			if err != nil {
				return err
			}
			targetEnv, err := loadTarget(target)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &signengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			sessionID, startARID, err := c.Invite(background(), groupID, args, targetEnv, preview)
			if err != nil {
				return err
			}
			fmt.Println("session:", sessionID)
			fmt.Println("start:", startARID)
			return nil
		},
	}
	invite.Flags().StringVar(&groupRef, "group", "", "group id (ur:arid)")
	invite.Flags().StringVar(&target, "target", "", "target envelope: a ur:envelope/... string, or a path to a file to sign")
	invite.Flags().BoolVar(&preview, "preview", false, "print the signed-plaintext envelope instead of posting it; no state is mutated")
	_ = invite.MarkFlagRequired("group")
	_ = invite.MarkFlagRequired("target")
	root.AddCommand(invite)

	var round1GroupRef, sessionRef string
	round1 := &cobra.Command{
		Use:   "round1",
		Short: "collect signing commitments from every signer and dispatch signShare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(round1GroupRef)
			if err != nil {
				return err
			}
			sessionID, err := arid.Parse(sessionRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &signengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			if err := c.Round1(background(), groupID, sessionID); err != nil {
				return err
			}
			fmt.Println("round1 collected for session:", sessionID)
			return nil
		},
	}
	round1.Flags().StringVar(&round1GroupRef, "group", "", "group id (ur:arid)")
	round1.Flags().StringVar(&sessionRef, "session", "", "session id (ur:arid)")
	_ = round1.MarkFlagRequired("group")
	_ = round1.MarkFlagRequired("session")
	root.AddCommand(round1)

	var round2GroupRef, round2SessionRef string
	round2 := &cobra.Command{
		Use:   "round2",
		Short: "collect signature shares, aggregate, and dispatch signFinalize",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(round2GroupRef)
			if err != nil {
				return err
			}
			sessionID, err := arid.Parse(round2SessionRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c := &signengine.Coordinator{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout(), Concurrency: flags.parallel}
			signature, signedTargetUR, err := c.Round2(background(), groupID, sessionID)
			if err != nil {
				return err
			}
			fmt.Printf("signature: %x\n", signature)
			fmt.Println("signed target:", signedTargetUR)
			return nil
		},
	}
	round2.Flags().StringVar(&round2GroupRef, "group", "", "group id (ur:arid)")
	round2.Flags().StringVar(&round2SessionRef, "session", "", "session id (ur:arid)")
	_ = round2.MarkFlagRequired("group")
	_ = round2.MarkFlagRequired("session")
	root.AddCommand(round2)

	return root
}

func newSignParticipantCommand() *cobra.Command {
	root := &cobra.Command{Use: "participant", Short: "run the participant side of a signing session"}

	var receiveGroupRef string
	receive := &cobra.Command{
		Use:   "receive <start-arid>",
		Short: "fetch and decrypt a signInvite, persisting session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(receiveGroupRef)
			if err != nil {
				return err
			}
			startARID, err := arid.Parse(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &signengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			sessionID, err := p.Receive(background(), groupID, startARID)
			if err != nil {
				return err
			}
			fmt.Println("session:", sessionID)
			return nil
		},
	}
	receive.Flags().StringVar(&receiveGroupRef, "group", "", "group id (ur:arid)")
	_ = receive.MarkFlagRequired("group")
	root.AddCommand(receive)

	round1 := newSignParticipantSimpleCommand("round1", "commit signing nonces and post signCommitResponse",
		func(p *signengine.Participant, groupID, sessionID arid.ARID) (string, error) {
			if err := p.Round1(background(), groupID, sessionID); err != nil {
				return "", err
			}
			return "round1 committed", nil
		})
	root.AddCommand(round1)

	round2 := newSignParticipantSimpleCommand("round2", "compute and post this participant's signature share",
		func(p *signengine.Participant, groupID, sessionID arid.ARID) (string, error) {
			if err := p.Round2(background(), groupID, sessionID); err != nil {
				return "", err
			}
			return "round2 share posted", nil
		})
	root.AddCommand(round2)

	var finalizeGroupRef, finalizeSessionRef string
	finalize := &cobra.Command{
		Use:   "finalize",
		Short: "fetch every share, aggregate, and verify the signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(finalizeGroupRef)
			if err != nil {
				return err
			}
			sessionID, err := arid.Parse(finalizeSessionRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &signengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			signature, signedTargetUR, err := p.Finalize(background(), groupID, sessionID)
			if err != nil {
				return err
			}
			fmt.Printf("signature: %x\n", signature)
			fmt.Println("signed target:", signedTargetUR)
			return nil
		},
	}
	finalize.Flags().StringVar(&finalizeGroupRef, "group", "", "group id (ur:arid)")
	finalize.Flags().StringVar(&finalizeSessionRef, "session", "", "session id (ur:arid)")
	_ = finalize.MarkFlagRequired("group")
	_ = finalize.MarkFlagRequired("session")
	root.AddCommand(finalize)

	return root
}

// newSignParticipantSimpleCommand factors the identical
// --group/--session plumbing shared by round1 and round2, whose engine
// calls differ only in which *signengine.Participant method they
// invoke and what they print on success.
func newSignParticipantSimpleCommand(use, short string, run func(p *signengine.Participant, groupID, sessionID arid.ARID) (string, error)) *cobra.Command {
	var groupRef, sessionRef string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := arid.Parse(groupRef)
			if err != nil {
				return err
			}
			sessionID, err := arid.Parse(sessionRef)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			p := &signengine.Participant{Reg: e.reg, RegistryDir: registryDir(), Client: e.client, Timeout: e.timeout()}
			msg, err := run(p, groupID, sessionID)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&groupRef, "group", "", "group id (ur:arid)")
	cmd.Flags().StringVar(&sessionRef, "session", "", "session id (ur:arid)")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
