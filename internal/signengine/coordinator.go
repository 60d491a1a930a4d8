package signengine

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"sort"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/dispatch"
	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/groupstate"
	"github.com/frostkit/frost-cli/internal/identity"
	"github.com/frostkit/frost-cli/internal/registry"
	"github.com/frostkit/frost-cli/internal/rendezvous"
	"github.com/frostkit/frost-cli/internal/xid"
)

// Coordinator drives the coordinator-side signing operations of spec
// §4.5 over an already-finalized DKG group. Unlike internal/dkgengine's
// Coordinator, it never touches the group record: signing sessions are
// not stored in the group record, they live on disk under the group's
// state directory, so every method here reads/writes only the
// session's files under groupstate.Dir.Session.
type Coordinator struct {
	Reg         *registry.Registry
	RegistryDir string
	Client      rendezvous.Client
	Timeout     time.Duration
	// Concurrency bounds the parallel dispatcher of spec §4.6, same
	// convention as internal/dkgengine.Coordinator.Concurrency.
	Concurrency int
}

// collectLoop mirrors internal/dkgengine.Coordinator.collectLoop: one
// dispatch.ParallelFetch call per phase, bounded by c.Concurrency, with
// step doing the per-phase parse/validate/extract while running
// serialized under the dispatcher's result-map mutex.
func (c *Coordinator) collectLoop(ctx context.Context, targets map[xid.XID]arid.ARID, timeoutKind string, step func(peerXID xid.XID, raw []byte) error) error {
	requests := make([]dispatch.FetchRequest, 0, len(targets))
	for peerXID, from := range targets {
		requests = append(requests, dispatch.FetchRequest{XID: peerXID, ARID: from, Timeout: c.Timeout})
	}
	results := dispatch.ParallelFetch(ctx, c.Client, requests, func(peerXID xid.XID, raw []byte) error {
		return step(peerXID, raw)
	}, c.Concurrency)

	for peerXID := range results.Timeouts {
		return frosterr.Newf(frosterr.Timeout, "Timeout waiting for %s response from %s", timeoutKind, peerXID)
	}
	for _, err := range results.Rejections {
		return err
	}
	for _, err := range results.Errors {
		return err
	}
	return nil
}

func (c *Coordinator) groupRecord(groupID arid.ARID) (*registry.GroupRecord, error) {
	gr, ok := c.Reg.Groups[groupID]
	if !ok {
		return nil, frosterr.Newf(frosterr.Configuration, "unknown group %s", groupID)
	}
	owner := c.Reg.Owner
	if owner == nil {
		return nil, frosterr.New(frosterr.Configuration, "no registry owner set")
	}
	if !memberOf(owner.XID(), gr.Participants) {
		return nil, frosterr.New(frosterr.Configuration, "local owner is not a participant of this group")
	}
	if gr.Contributions.KeyPackage == "" {
		return nil, frosterr.New(frosterr.Configuration, "group's DKG has not finished: no key package on record")
	}
	return gr, nil
}

func (c *Coordinator) participantDoc(x xid.XID) (*xid.Document, error) {
	rec, ok := c.Reg.Participants[x]
	if !ok {
		return nil, frosterr.Newf(frosterr.Protocol, "unknown participant %s", x)
	}
	return rec.Document, nil
}

// Invite implements spec §4.5's coordinator invite. The local owner
// joins the session as a signer alongside the named peers, computing
// its own nonces/commitments locally instead of round-tripping an
// invite to itself, the same self-participation pattern
// internal/dkgengine uses for DKG. Any t-or-more member of the group's
// original participant set may coordinate a session; nothing here
// requires the local owner to be the group's original DKG coordinator.
func (c *Coordinator) Invite(ctx context.Context, groupID arid.ARID, peerRefs []string, target *envelope.Envelope, preview bool) (sessionID arid.ARID, startARID arid.ARID, err error) {
	gr, err := c.groupRecord(groupID)
	if err != nil {
		return sessionID, startARID, err
	}
	owner := c.Reg.Owner

	signers := []xid.XID{owner.XID()}
	seen := map[xid.XID]bool{owner.XID(): true}
	for _, ref := range peerRefs {
		rec, err := c.Reg.ResolveParticipant(ref)
		if err != nil {
			return sessionID, startARID, err
		}
		x := rec.Document.XID()
		if !memberOf(x, gr.Participants) {
			return sessionID, startARID, frosterr.Newf(frosterr.Configuration, "%s did not participate in this group's DKG", x)
		}
		if seen[x] {
			continue
		}
		seen[x] = true
		signers = append(signers, x)
	}
	if len(signers) < gr.Threshold {
		return sessionID, startARID, frosterr.Newf(frosterr.Configuration, "need at least %d signers, got %d", gr.Threshold, len(signers))
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i].Less(signers[j]) })

	sessionID, err = arid.New()
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint session id")
	}
	targetUR, err := envelope.ToUR(target)
	if err != nil {
		return sessionID, startARID, err
	}

	commitARIDs := make(map[xid.XID]arid.ARID, len(signers)-1)
	params := []envelope.Assertion{
		{Predicate: "group", Object: envelope.NewARID(groupID)},
		{Predicate: "session", Object: envelope.NewARID(sessionID)},
		{Predicate: "minSigners", Object: envelope.NewInt(int64(gr.Threshold))},
		{Predicate: "target", Object: envelope.NewString(targetUR)},
	}
	recipients := make([]*xid.Document, 0, len(signers)-1)
	for _, x := range signers {
		if x == owner.XID() {
			continue
		}
		peerDoc, err := c.participantDoc(x)
		if err != nil {
			return sessionID, startARID, err
		}
		commitARID, err := arid.New()
		if err != nil {
			return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint commit arid")
		}
		encrypted, err := envelope.EncryptARIDTo(commitARID, peerDoc.EncryptionPublicKey)
		if err != nil {
			return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "encrypt commit arid")
		}
		docBytes, err := marshalValue(peerDoc)
		if err != nil {
			return sessionID, startARID, err
		}
		entry := envelope.NewSubject(docBytes)
		entry.Assert("commitArid", envelope.NewBytes(encrypted))
		params = append(params, envelope.Assertion{Predicate: "participant", Object: envelope.NewEnvelope(entry)})
		commitARIDs[x] = commitARID
		recipients = append(recipients, peerDoc)
	}

	requestID, err := arid.New()
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint request id")
	}
	validUntil := time.Now().Add(time.Hour)
	signed, err := envelope.BuildRequest(owner, requestID, FunctionInvite, validUntil, nil, params)
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "build invite envelope")
	}

	startARID, err = arid.New()
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint start arid")
	}
	if preview {
		return sessionID, startARID, nil
	}

	var sealed *envelope.SealedMessage
	if len(recipients) == 0 {
		sealed, err = envelope.UnsealedEnvelope(signed)
	} else {
		sealed, err = envelope.SealEnvelope(signed, recipients)
	}
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "seal invite envelope")
	}
	data, err := sealed.Marshal()
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.IO, err, "encode sealed invite")
	}
	if err := c.Client.Put(ctx, startARID, data); err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Transport, err, "post invite")
	}

	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	var keyPkg frost.KeyPackage
	if err := stateDir.Read(groupstate.KeyPackage, &keyPkg); err != nil {
		return sessionID, startARID, err
	}
	nonces, commitments, err := frost.Commit(&keyPkg)
	if err != nil {
		return sessionID, startARID, frosterr.Wrap(frosterr.Cryptographic, err, "commit own nonces")
	}
	sessionDir := stateDir.Session(sessionID)
	selfCommit := Commit{SessionID: sessionID, Nonces: *nonces, Commitments: *commitments, TargetUR: targetUR}
	if err := sessionDir.Write(groupstate.SignCommit, selfCommit); err != nil {
		return sessionID, startARID, err
	}
	start := Start{
		GroupID:      groupID,
		SessionID:    sessionID,
		Coordinator:  owner.XID(),
		Participants: signers,
		Threshold:    gr.Threshold,
		TargetUR:     targetUR,
		CommitARIDs:  commitARIDs,
	}
	if err := sessionDir.Write(groupstate.SignStart, start); err != nil {
		return sessionID, startARID, err
	}
	return sessionID, startARID, nil
}

// Round1 implements spec §4.5's coordinator round1: collect every
// peer's signing commitments and the ARID each peer will next listen
// at for its signShare request, fold in the coordinator's own
// commitments (computed at Invite time), then dispatch signShare to
// every peer carrying the full commitment set and a coordinator-minted
// ARID for that peer's share response. The destination of each
// signShare request is the ARID the peer itself chose in its commit
// response, continuing the same receiver-chooses-next-ARID pattern
// internal/dkgengine uses between DKG rounds.
func (c *Coordinator) Round1(ctx context.Context, groupID, sessionID arid.ARID) error {
	if _, err := c.groupRecord(groupID); err != nil {
		return err
	}
	owner := c.Reg.Owner
	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)

	var start Start
	if err := sessionDir.Read(groupstate.SignStart, &start); err != nil {
		return err
	}
	var selfCommit Commit
	if err := sessionDir.Read(groupstate.SignCommit, &selfCommit); err != nil {
		return err
	}

	commitments := map[xid.XID]frost.SigningCommitments{owner.XID(): selfCommit.Commitments}
	listenARIDs := make(map[xid.XID]arid.ARID, len(start.CommitARIDs))

	step := func(peerXID xid.XID, raw []byte) error {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return err
		}
		resp, err := parseSignedResponse(raw, owner, peerDoc)
		if err != nil {
			return err
		}
		if resp.IsError() {
			reason, _ := resp.Reason()
			return frosterr.Newf(frosterr.RemoteRejection, "participant %s rejected signing: %s", peerXID, reason)
		}
		result, err := resp.Result()
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "extract signCommitResponse result")
		}
		if err := validateResultType(result, ResultCommitResponse); err != nil {
			return err
		}
		if err := validateARIDParam(result, "session", sessionID); err != nil {
			return err
		}
		commitBytes, err := resultField(result, "commitments")
		if err != nil {
			return err
		}
		var peerCommit frost.SigningCommitments
		if err := unmarshalInto(commitBytes, &peerCommit); err != nil {
			return err
		}
		listenARID, err := resultARID(result, "listenArid")
		if err != nil {
			return err
		}
		commitments[peerXID] = peerCommit
		listenARIDs[peerXID] = listenARID
		return nil
	}
	if err := c.collectLoop(ctx, start.CommitARIDs, "commit", step); err != nil {
		return err
	}

	shareResponseARIDs := make(map[xid.XID]arid.ARID, len(listenARIDs))
	for peerXID := range listenARIDs {
		shareResponseARID, err := arid.New()
		if err != nil {
			return frosterr.Wrap(frosterr.Cryptographic, err, "mint share collect arid")
		}
		shareResponseARIDs[peerXID] = shareResponseARID
	}

	if err := sessionDir.Write(groupstate.SignCommitments, Commitments{
		SessionID:          sessionID,
		Commitments:        commitments,
		ShareResponseARIDs: shareResponseARIDs,
	}); err != nil {
		return err
	}

	commitmentParams := make([]envelope.Assertion, 0, len(commitments))
	for xidInSet, commit := range commitments {
		b, err := json.Marshal(commit)
		if err != nil {
			return frosterr.Wrap(frosterr.IO, err, "marshal commitments")
		}
		commitmentParams = append(commitmentParams, envelope.Assertion{Predicate: "commitments", Object: wrapXIDData(xidInSet, b)})
	}

	for peerXID, listenARID := range listenARIDs {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return err
		}
		params := append([]envelope.Assertion{
			{Predicate: "group", Object: envelope.NewARID(groupID)},
			{Predicate: "session", Object: envelope.NewARID(sessionID)},
			{Predicate: "responseArid", Object: envelope.NewARID(shareResponseARIDs[peerXID])},
		}, commitmentParams...)
		if err := sendRequest(ctx, c.Client, owner, peerDoc, FunctionShare, params, listenARID, time.Hour); err != nil {
			return err
		}
	}
	return nil
}

// Round2 implements spec §4.5's coordinator round2: collect every
// peer's signature share, aggregate with the coordinator's own locally
// computed share, verify, and dispatch signFinalize to every
// participant, again at each peer's self-chosen listen ARID.
func (c *Coordinator) Round2(ctx context.Context, groupID, sessionID arid.ARID) (signature []byte, signedTargetUR string, err error) {
	gr, err := c.groupRecord(groupID)
	if err != nil {
		return nil, "", err
	}
	owner := c.Reg.Owner
	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	sessionDir := stateDir.Session(sessionID)

	var start Start
	if err := sessionDir.Read(groupstate.SignStart, &start); err != nil {
		return nil, "", err
	}
	var agg Commitments
	if err := sessionDir.Read(groupstate.SignCommitments, &agg); err != nil {
		return nil, "", err
	}
	var selfCommit Commit
	if err := sessionDir.Read(groupstate.SignCommit, &selfCommit); err != nil {
		return nil, "", err
	}
	var keyPkg frost.KeyPackage
	if err := stateDir.Read(groupstate.KeyPackage, &keyPkg); err != nil {
		return nil, "", err
	}
	var pubPkg frost.PublicKeyPackage
	if err := stateDir.Read(groupstate.PublicKeyPackage, &pubPkg); err != nil {
		return nil, "", err
	}

	target, err := envelope.FromUR(start.TargetUR)
	if err != nil {
		return nil, "", err
	}
	digest, err := target.SubjectDigest()
	if err != nil {
		return nil, "", err
	}
	forward, _ := identity.Assign(gr.Participants)
	pkg := frost.NewSigningPackage(digest, toIdentifierCommitments(agg.Commitments, forward))

	finalizeARIDs := make(map[xid.XID]arid.ARID, len(agg.ShareResponseARIDs))
	shares := map[xid.XID]frost.SignatureShare{}

	selfNonces := selfCommit.Nonces
	selfShare, err := frost.Sign(pkg, &selfNonces, &keyPkg)
	if err != nil {
		return nil, "", frosterr.Wrap(frosterr.Cryptographic, err, "compute own signature share")
	}
	shares[owner.XID()] = *selfShare

	shareStep := func(peerXID xid.XID, raw []byte) error {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return err
		}
		resp, err := parseSignedResponse(raw, owner, peerDoc)
		if err != nil {
			return err
		}
		if resp.IsError() {
			reason, _ := resp.Reason()
			return frosterr.Newf(frosterr.RemoteRejection, "participant %s rejected signing: %s", peerXID, reason)
		}
		result, err := resp.Result()
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "extract signShareResponse result")
		}
		if err := validateResultType(result, ResultShareResponse); err != nil {
			return err
		}
		if err := validateARIDParam(result, "session", sessionID); err != nil {
			return err
		}
		shareBytes, err := resultField(result, "signatureShare")
		if err != nil {
			return err
		}
		var share frost.SignatureShare
		if err := unmarshalInto(shareBytes, &share); err != nil {
			return err
		}
		finalizeARID, err := resultARID(result, "listenArid")
		if err != nil {
			return err
		}
		shares[peerXID] = share
		finalizeARIDs[peerXID] = finalizeARID
		return nil
	}
	// Threshold admittance (spec §8): a share fetch that times out, is
	// rejected, or fails validation only shrinks the collected set below
	// start.Threshold rather than aborting Round2 outright — a t-of-n
	// session only ever invites the intended signer set, and any subset
	// of them dropping out is expected, not protocol-violating.
	shareRequests := make([]dispatch.FetchRequest, 0, len(agg.ShareResponseARIDs))
	for peerXID, from := range agg.ShareResponseARIDs {
		shareRequests = append(shareRequests, dispatch.FetchRequest{XID: peerXID, ARID: from, Timeout: c.Timeout})
	}
	dispatch.ParallelFetch(ctx, c.Client, shareRequests, shareStep, c.Concurrency)

	if len(shares) < start.Threshold {
		return nil, "", frosterr.Newf(frosterr.Cryptographic, "collected %d signature shares, need at least %d", len(shares), start.Threshold)
	}

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
	if !ed25519.Verify(pubPkg.VerifyingKey.Bytes(), digest[:], sig) {
		return nil, "", frosterr.New(frosterr.Cryptographic, "aggregated signature failed verification against the group key")
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

	shareParams := make([]envelope.Assertion, 0, len(shares))
	for xidInSet, share := range shares {
		b, err := json.Marshal(share)
		if err != nil {
			return nil, "", frosterr.Wrap(frosterr.IO, err, "marshal signature share")
		}
		shareParams = append(shareParams, envelope.Assertion{Predicate: "share", Object: wrapXIDData(xidInSet, b)})
	}

	for peerXID, finalizeARID := range finalizeARIDs {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return nil, "", err
		}
		params := append([]envelope.Assertion{
			{Predicate: "group", Object: envelope.NewARID(groupID)},
			{Predicate: "session", Object: envelope.NewARID(sessionID)},
		}, shareParams...)
		if err := sendRequest(ctx, c.Client, owner, peerDoc, FunctionFinalize, params, finalizeARID, time.Hour); err != nil {
			return nil, "", err
		}
	}

	return sig, signedTargetUR, nil
}

// toIdentifierCommitments rekeys a signing session's XID-addressed
// commitment map to FROST identifiers, using the DKG group's full
// participant list so identifiers agree with those baked into every
// KeyPackage at DKG time (spec §3's sort-and-number-from-1 rule is
// applied over the whole group, not just the signers of one session).
func toIdentifierCommitments(byXID map[xid.XID]frost.SigningCommitments, forward map[xid.XID]frost.Identifier) map[frost.Identifier]frost.SigningCommitments {
	out := make(map[frost.Identifier]frost.SigningCommitments, len(byXID))
	for x, cm := range byXID {
		if id, ok := forward[x]; ok {
			out[id] = cm
		}
	}
	return out
}
