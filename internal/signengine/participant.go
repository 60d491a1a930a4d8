package signengine

import (
	"context"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/groupstate"
	"github.com/frostkit/frost-cli/internal/identity"
	"github.com/frostkit/frost-cli/internal/registry"
	"github.com/frostkit/frost-cli/internal/rendezvous"
	"github.com/frostkit/frost-cli/internal/xid"
)

// Participant mirrors Coordinator's operations from a signing peer's
// side: receive/commit/share/finalize, each reading and writing only
// the session directory under the group's durable state, exactly as
// internal/dkgengine.Participant does for DKG.
type Participant struct {
	Reg         *registry.Registry
	RegistryDir string
	Client      rendezvous.Client
	Timeout     time.Duration
}

func (p *Participant) groupRecord(groupID arid.ARID) (*registry.GroupRecord, error) {
	gr, ok := p.Reg.Groups[groupID]
	if !ok {
		return nil, frosterr.Newf(frosterr.Configuration, "unknown group %s", groupID)
	}
	if p.Reg.Owner == nil {
		return nil, frosterr.New(frosterr.Configuration, "no registry owner set")
	}
	if !memberOf(p.Reg.Owner.XID(), gr.Participants) {
		return nil, frosterr.New(frosterr.Configuration, "local owner is not a participant of this group")
	}
	if gr.Contributions.KeyPackage == "" {
		return nil, frosterr.New(frosterr.Configuration, "group's DKG has not finished: no key package on record")
	}
	return gr, nil
}

func (p *Participant) participantDoc(x xid.XID) (*xid.Document, error) {
	rec, ok := p.Reg.Participants[x]
	if !ok {
		return nil, frosterr.Newf(frosterr.Protocol, "unknown participant %s", x)
	}
	return rec.Document, nil
}

// Receive implements spec §4.5's participant receive: fetch and decrypt
// the coordinator's signInvite at startARID, find the local owner's own
// encrypted commit ARID among the participant entries, and persist
// Receive state.
func (p *Participant) Receive(ctx context.Context, groupID, startARID arid.ARID) (sessionID arid.ARID, err error) {
	gr, err := p.groupRecord(groupID)
	if err != nil {
		return sessionID, err
	}
	owner := p.Reg.Owner

	raw, found, err := p.Client.Get(ctx, startARID, p.Timeout)
	if err != nil {
		return sessionID, frosterr.Wrap(frosterr.Transport, err, "fetch invite")
	}
	if !found {
		return sessionID, frosterr.New(frosterr.Timeout, "Timeout waiting for signing invite")
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return sessionID, err
	}
	if err := validateFunctionIs(req, FunctionInvite); err != nil {
		return sessionID, err
	}
	if !memberOf(sender.XID(), gr.Participants) {
		return sessionID, frosterr.New(frosterr.Protocol, "invite sender is not a member of this group")
	}
	if err := validateARIDParam(req.Env, "group", groupID); err != nil {
		return sessionID, err
	}

	sessionVal, err := req.Param("session")
	if err != nil {
		return sessionID, err
	}
	sessionID, err = sessionVal.AsARID()
	if err != nil {
		return sessionID, err
	}

	thresholdVal, err := req.Param("minSigners")
	if err != nil {
		return sessionID, err
	}
	minSigners, err := thresholdVal.AsInt()
	if err != nil {
		return sessionID, err
	}

	targetVal, err := req.Param("target")
	if err != nil {
		return sessionID, err
	}
	targetUR, err := targetVal.AsString()
	if err != nil {
		return sessionID, err
	}

	inviteRequestID, err := req.RequestID()
	if err != nil {
		return sessionID, err
	}

	var commitARID arid.ARID
	var foundSelf bool
	participants := []xid.XID{sender.XID()}
	for _, v := range req.Params("participant") {
		entryEnv, err := v.AsEnvelope()
		if err != nil {
			return sessionID, err
		}
		docBytes, err := entryEnv.Subject.AsBytes()
		if err != nil {
			return sessionID, err
		}
		var peerDoc xid.Document
		if err := unmarshalInto(docBytes, &peerDoc); err != nil {
			return sessionID, err
		}
		participants = append(participants, peerDoc.XID())
		if peerDoc.XID() != owner.XID() {
			continue
		}
		encryptedVal, err := entryEnv.One("commitArid")
		if err != nil {
			return sessionID, err
		}
		encrypted, err := encryptedVal.AsBytes()
		if err != nil {
			return sessionID, err
		}
		priv, err := owner.EncryptionPrivateKey()
		if err != nil {
			return sessionID, frosterr.Wrap(frosterr.Configuration, err, "missing local encryption private key")
		}
		commitARID, err = envelope.DecryptARIDFrom(encrypted, priv)
		if err != nil {
			return sessionID, frosterr.Wrap(frosterr.Cryptographic, err, "decrypt commit arid")
		}
		foundSelf = true
	}
	if !foundSelf {
		return sessionID, frosterr.New(frosterr.Protocol, "invite does not name the local owner as a signer")
	}

	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)
	if err := sessionDir.Write(groupstate.SignReceive, Receive{
		GroupID:            groupID,
		SessionID:          sessionID,
		Coordinator:        sender.XID(),
		Participants:       participants,
		Threshold:          int(minSigners),
		TargetUR:           targetUR,
		CommitResponseARID: commitARID,
		InviteRequestID:    inviteRequestID,
	}); err != nil {
		return sessionID, err
	}
	return sessionID, nil
}

// Round1 implements spec §4.5's participant commit step: generate fresh
// signing nonces, mint an ARID at which to next listen for the
// coordinator's signShare request, and post signCommitResponse at the
// ARID the coordinator named in the invite.
func (p *Participant) Round1(ctx context.Context, groupID, sessionID arid.ARID) error {
	if _, err := p.groupRecord(groupID); err != nil {
		return err
	}
	owner := p.Reg.Owner
	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)

	var receive Receive
	if err := sessionDir.Read(groupstate.SignReceive, &receive); err != nil {
		return err
	}
	var keyPkg frost.KeyPackage
	if err := stateDir.Read(groupstate.KeyPackage, &keyPkg); err != nil {
		return err
	}
	coordDoc, err := p.participantDoc(receive.Coordinator)
	if err != nil {
		return err
	}

	nonces, commitments, err := frost.Commit(&keyPkg)
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "generate signing nonces")
	}
	shareARID, err := arid.New()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "mint share listen arid")
	}
	if err := sessionDir.Write(groupstate.SignCommit, Commit{
		SessionID:   sessionID,
		Nonces:      *nonces,
		Commitments: *commitments,
		TargetUR:    receive.TargetUR,
		ShareARID:   shareARID,
	}); err != nil {
		return err
	}

	commitBytes, err := jsonMarshalCommitments(*commitments)
	if err != nil {
		return err
	}
	result := envelope.NewSubject(envelope.NewString(ResultCommitResponse))
	result.Assert("session", envelope.NewARID(sessionID))
	result.Assert("commitments", envelope.NewBytes(commitBytes))
	result.Assert("listenArid", envelope.NewARID(shareARID))

	signed, err := envelope.BuildResultResponse(owner, receive.InviteRequestID, result, nil, "")
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "build signCommitResponse")
	}
	return postSealedResponse(ctx, p.Client, owner, coordDoc, signed, receive.CommitResponseARID)
}

// Round2 implements spec §4.5's participant share step: fetch the
// coordinator's signShare request at the ARID minted in Round1, build
// the full signing package from the commitment set it carries, and
// post signShareResponse at the coordinator-minted response ARID,
// along with an ARID for the participant to next listen at for
// finalize.
func (p *Participant) Round2(ctx context.Context, groupID, sessionID arid.ARID) error {
	gr, err := p.groupRecord(groupID)
	if err != nil {
		return err
	}
	owner := p.Reg.Owner
	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)

	var receive Receive
	if err := sessionDir.Read(groupstate.SignReceive, &receive); err != nil {
		return err
	}
	var selfCommit Commit
	if err := sessionDir.Read(groupstate.SignCommit, &selfCommit); err != nil {
		return err
	}
	var keyPkg frost.KeyPackage
	if err := stateDir.Read(groupstate.KeyPackage, &keyPkg); err != nil {
		return err
	}
	if keyPkg.Threshold != receive.Threshold {
		return frosterr.New(frosterr.Protocol, "key package threshold does not match session threshold")
	}
	coordDoc, err := p.participantDoc(receive.Coordinator)
	if err != nil {
		return err
	}

	raw, found, err := p.Client.Get(ctx, selfCommit.ShareARID, p.Timeout)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "fetch signShare request")
	}
	if !found {
		return frosterr.New(frosterr.Timeout, "Timeout waiting for signShare request")
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return err
	}
	if sender.XID() != receive.Coordinator {
		return frosterr.New(frosterr.Protocol, "signShare request not sent by session coordinator")
	}
	if err := validateFunctionIs(req, FunctionShare); err != nil {
		return err
	}
	if err := validateARIDParam(req.Env, "session", sessionID); err != nil {
		return err
	}
	responseVal, err := req.Param("responseArid")
	if err != nil {
		return err
	}
	responseARID, err := responseVal.AsARID()
	if err != nil {
		return err
	}

	commitments := map[xid.XID]frost.SigningCommitments{}
	for _, v := range req.Params("commitments") {
		x, data, err := unwrapXIDData(v)
		if err != nil {
			return err
		}
		var c frost.SigningCommitments
		if err := unmarshalInto(data, &c); err != nil {
			return err
		}
		commitments[x] = c
	}
	ownCommit, ok := commitments[owner.XID()]
	if !ok {
		return frosterr.New(frosterr.Protocol, "signShare request's commitment set does not include the local owner")
	}
	if !sameCommitments(ownCommit, selfCommit.Commitments) {
		return frosterr.New(frosterr.Protocol, "redistributed commitments do not match locally persisted commitments")
	}

	target, err := envelope.FromUR(receive.TargetUR)
	if err != nil {
		return err
	}
	digest, err := target.SubjectDigest()
	if err != nil {
		return err
	}
	forward, _ := identity.Assign(gr.Participants)
	pkg := frost.NewSigningPackage(digest, toIdentifierCommitments(commitments, forward))

	nonces := selfCommit.Nonces
	share, err := frost.Sign(pkg, &nonces, &keyPkg)
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "compute signature share")
	}

	finalizeARID, err := arid.New()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "mint finalize listen arid")
	}
	if err := sessionDir.Write(groupstate.SignShare, Share{
		SessionID:    sessionID,
		Share:        *share,
		Commitments:  commitments,
		FinalizeARID: finalizeARID,
	}); err != nil {
		return err
	}

	shareBytes, err := jsonMarshalShare(*share)
	if err != nil {
		return err
	}
	result := envelope.NewSubject(envelope.NewString(ResultShareResponse))
	result.Assert("session", envelope.NewARID(sessionID))
	result.Assert("signatureShare", envelope.NewBytes(shareBytes))
	result.Assert("listenArid", envelope.NewARID(finalizeARID))

	shareRequestID, err := req.RequestID()
	if err != nil {
		return err
	}
	signed, err := envelope.BuildResultResponse(owner, shareRequestID, result, nil, "")
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "build signShareResponse")
	}
	return postSealedResponse(ctx, p.Client, owner, coordDoc, signed, responseARID)
}

// Finalize implements spec §4.5's participant finalize step: fetch the
// signFinalize request at the ARID minted in Round2, independently
// recompute the aggregate signature from the shares it carries, verify
// it against the group's verifying key, and persist the result.
func (p *Participant) Finalize(ctx context.Context, groupID, sessionID arid.ARID) (signature []byte, signedTargetUR string, err error) {
	gr, err := p.groupRecord(groupID)
	if err != nil {
		return nil, "", err
	}
	owner := p.Reg.Owner
	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)

	var receive Receive
	if err := sessionDir.Read(groupstate.SignReceive, &receive); err != nil {
		return nil, "", err
	}
	var selfShare Share
	if err := sessionDir.Read(groupstate.SignShare, &selfShare); err != nil {
		return nil, "", err
	}
	var pubPkg frost.PublicKeyPackage
	if err := stateDir.Read(groupstate.PublicKeyPackage, &pubPkg); err != nil {
		return nil, "", err
	}

	raw, found, err := p.Client.Get(ctx, selfShare.FinalizeARID, p.Timeout)
	if err != nil {
		return nil, "", frosterr.Wrap(frosterr.Transport, err, "fetch signFinalize request")
	}
	if !found {
		return nil, "", frosterr.New(frosterr.Timeout, "Timeout waiting for signFinalize request")
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return nil, "", err
	}
	if sender.XID() != receive.Coordinator {
		return nil, "", frosterr.New(frosterr.Protocol, "signFinalize request not sent by session coordinator")
	}
	if err := validateFunctionIs(req, FunctionFinalize); err != nil {
		return nil, "", err
	}
	if err := validateARIDParam(req.Env, "session", sessionID); err != nil {
		return nil, "", err
	}

	shares := map[xid.XID]frost.SignatureShare{}
	for _, v := range req.Params("share") {
		x, data, err := unwrapXIDData(v)
		if err != nil {
			return nil, "", err
		}
		var s frost.SignatureShare
		if err := unmarshalInto(data, &s); err != nil {
			return nil, "", err
		}
		shares[x] = s
	}
	if _, ok := shares[owner.XID()]; !ok {
		return nil, "", frosterr.New(frosterr.Protocol, "signFinalize request does not include the local owner's own share")
	}

	target, err := envelope.FromUR(receive.TargetUR)
	if err != nil {
		return nil, "", err
	}
	digest, err := target.SubjectDigest()
	if err != nil {
		return nil, "", err
	}
	forward, _ := identity.Assign(gr.Participants)
	pkg := frost.NewSigningPackage(digest, toIdentifierCommitments(selfShare.Commitments, forward))

	idShares := make(map[frost.Identifier]*frost.SignatureShare, len(shares))
	for x, s := range shares {
		s := s
		id, ok := forward[x]
		if !ok {
			return nil, "", frosterr.Newf(frosterr.Protocol, "signer %s is not a member of the DKG group", x)
		}
		idShares[id] = &s
	}
	sig, err := frost.Aggregate(pkg, idShares, &pubPkg)
	if err != nil {
		return nil, "", frosterr.Wrap(frosterr.Cryptographic, err, "aggregate signature")
	}
	signedTarget := envelope.AttachSignature(target, sig)
	ok, err := envelope.VerifyTargetSignature(signedTarget, pubPkg.VerifyingKey.Bytes())
	if err != nil {
		return nil, "", frosterr.Wrap(frosterr.Cryptographic, err, "verify wrapped target signature")
	}
	if !ok {
		return nil, "", frosterr.New(frosterr.Cryptographic, "signed target envelope failed verification")
	}
	signedTargetUR, err = envelope.ToUR(signedTarget)
	if err != nil {
		return nil, "", err
	}

	if err := sessionDir.Write(groupstate.SignFinal, Final{
		SessionID:    sessionID,
		Signature:    sig,
		SignedTarget: signedTargetUR,
		Shares:       shares,
	}); err != nil {
		return nil, "", err
	}
	return sig, signedTargetUR, nil
}

func jsonMarshalCommitments(c frost.SigningCommitments) ([]byte, error) {
	return marshalAsBytes(c)
}

func jsonMarshalShare(s frost.SignatureShare) ([]byte, error) {
	return marshalAsBytes(s)
}

func marshalAsBytes(v interface{}) ([]byte, error) {
	val, err := marshalValue(v)
	if err != nil {
		return nil, err
	}
	return val.AsBytes()
}
