package dkgengine

import (
	"context"
	"encoding/json"
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

// Coordinator drives the coordinator-side DKG operations of spec §4.4
// against a loaded registry and a rendezvous client. Every operation
// saves the registry on success; callers own opening/closing it.
type Coordinator struct {
	Reg         *registry.Registry
	RegistryDir string
	Client      rendezvous.Client
	Timeout     time.Duration
	// Concurrency bounds the parallel dispatcher of spec §4.6: 0 means
	// unbounded (up to one goroutine per pending participant), 1 makes
	// every collection phase fetch strictly one participant at a time.
	// The CLI's --parallel flag controls this; it defaults to 1.
	Concurrency int
}

// collectLoop drives spec §4.6's parallel fetch contract: it issues one
// `get` per pending participant via internal/dispatch, bounded by
// c.Concurrency, and calls step for every successfully fetched and
// schema-validated response. step itself does the per-phase extraction
// so it can mutate phase-local state; it runs serialized (dispatch
// holds its result-map mutex for the duration of the matching
// validate call), so no locking is needed inside step.
func (c *Coordinator) collectLoop(ctx context.Context, pending map[xid.XID]*registry.PendingEntry, timeoutKind string, step func(peerXID xid.XID, raw []byte) error) error {
	requests := make([]dispatch.FetchRequest, 0, len(pending))
	for peerXID, entry := range pending {
		if entry.CollectFrom == nil {
			continue
		}
		requests = append(requests, dispatch.FetchRequest{XID: peerXID, ARID: *entry.CollectFrom, Timeout: c.Timeout})
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

// InviteSend implements spec §4.4's coordinator invite/send. The local
// owner becomes a full DKG participant alongside the invited peers
// (per spec §3's "the coordinator XID is one of them" invariant), so
// it runs its own Part1 locally instead of inviting itself over the
// wire.
func (c *Coordinator) InviteSend(ctx context.Context, charter string, threshold int, peerRefs []string, preview bool) (groupID arid.ARID, inviteARID arid.ARID, err error) {
	if c.Reg.Owner == nil {
		return groupID, inviteARID, frosterr.New(frosterr.Configuration, "no registry owner set")
	}
	owner := c.Reg.Owner

	peers := make([]*registry.ParticipantRecord, 0, len(peerRefs))
	for _, ref := range peerRefs {
		rec, err := c.Reg.ResolveParticipant(ref)
		if err != nil {
			return groupID, inviteARID, err
		}
		peers = append(peers, rec)
	}

	allXIDs := make([]xid.XID, 0, len(peers)+1)
	allXIDs = append(allXIDs, owner.XID())
	for _, p := range peers {
		allXIDs = append(allXIDs, p.Document.XID())
	}
	n := len(allXIDs)
	if threshold < 2 || threshold > n || n < 2 {
		return groupID, inviteARID, frosterr.Newf(frosterr.Configuration, "invalid threshold %d for %d participants", threshold, n)
	}

	forward, _ := identity.Assign(allXIDs)

	groupID, err = arid.New()
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint group id")
	}

	selfSecret, selfPkg, err := frost.Part1(forward[owner.XID()], n, threshold, groupID[:])
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "run part1")
	}

	pending := make(map[xid.XID]*registry.PendingEntry, len(peers))
	params := []envelope.Assertion{
		{Predicate: "group", Object: envelope.NewARID(groupID)},
		{Predicate: "minSigners", Object: envelope.NewInt(int64(threshold))},
		{Predicate: "charter", Object: envelope.NewString(charter)},
		{Predicate: "date", Object: envelope.NewInt(time.Now().Unix())},
	}
	recipients := make([]*xid.Document, 0, len(peers))
	for _, p := range peers {
		collectFrom, err := arid.New()
		if err != nil {
			return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint collect-from arid")
		}
		encrypted, err := envelope.EncryptARIDTo(collectFrom, p.Document.EncryptionPublicKey)
		if err != nil {
			return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "encrypt collect-from arid")
		}
		docBytes, err := marshalValue(p.Document)
		if err != nil {
			return groupID, inviteARID, err
		}
		entry := envelope.NewSubject(docBytes)
		entry.Assert("collectFrom", envelope.NewBytes(encrypted))
		params = append(params, envelope.Assertion{Predicate: "participant", Object: envelope.NewEnvelope(entry)})

		pending[p.Document.XID()] = &registry.PendingEntry{CollectFrom: &collectFrom}
		recipients = append(recipients, p.Document)
	}

	validUntil := time.Now().Add(time.Hour)
	requestID, err := arid.New()
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint request id")
	}
	signed, err := envelope.BuildRequest(owner, requestID, FunctionInvite, validUntil, nil, params)
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "build invite envelope")
	}

	var sealed *envelope.SealedMessage
	if preview {
		sealed, err = envelope.UnsealedEnvelope(signed)
	} else {
		sealed, err = envelope.SealEnvelope(signed, recipients)
	}
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "seal invite envelope")
	}

	inviteARID, err = arid.New()
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Cryptographic, err, "mint invite arid")
	}

	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	if err := stateDir.Write(groupstate.Round1Secret, selfSecret); err != nil {
		return groupID, inviteARID, err
	}
	if err := stateDir.Write(groupstate.Round1Package, selfPkg); err != nil {
		return groupID, inviteARID, err
	}

	if preview {
		return groupID, inviteARID, nil
	}

	data, err := sealed.Marshal()
	if err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.IO, err, "encode sealed invite")
	}
	if err := c.Client.Put(ctx, inviteARID, data); err != nil {
		return groupID, inviteARID, frosterr.Wrap(frosterr.Transport, err, "post invite")
	}

	gr := &registry.GroupRecord{
		GroupID:         groupID,
		Charter:         charter,
		Threshold:       threshold,
		Coordinator:     owner.XID(),
		Participants:    identity.Sorted(allXIDs),
		PendingRequests: pending,
		Contributions: registry.Contributions{
			Round1Secret:  groupstate.Round1Secret,
			Round1Package: groupstate.Round1Package,
		},
	}
	if err := c.Reg.RecordGroup(gr); err != nil {
		return groupID, inviteARID, err
	}
	if err := c.Reg.Save(); err != nil {
		return groupID, inviteARID, err
	}
	return groupID, inviteARID, nil
}

// groupRecord loads and re-validates the named group from the
// registry, per spec §4.3's "re-read and re-validate rather than trust
// in-memory state" rule.
func (c *Coordinator) groupRecord(groupID arid.ARID) (*registry.GroupRecord, error) {
	gr, ok := c.Reg.Groups[groupID]
	if !ok {
		return nil, frosterr.Newf(frosterr.Configuration, "unknown group %s", groupID)
	}
	if gr.Coordinator != c.Reg.Owner.XID() {
		return nil, frosterr.New(frosterr.Configuration, "local owner is not the coordinator of this group")
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

// Round1 implements round1/collect immediately followed by the
// round1->round2 dispatch (spec §4.4 bundles these for one coordinator
// CLI invocation). Since the coordinator is itself a DKG participant it
// also runs its own Part2 here and hands each peer its share directly,
// rather than waiting on a round2/respond it would otherwise have to
// send to itself.
func (c *Coordinator) Round1(ctx context.Context, groupID arid.ARID) error {
	gr, err := c.groupRecord(groupID)
	if err != nil {
		return err
	}
	owner := c.Reg.Owner
	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	forward, _ := identity.Assign(gr.Participants)

	var selfSecret frost.RoundSecret
	var selfPkg frost.RoundPackage
	if err := stateDir.Read(groupstate.Round1Secret, &selfSecret); err != nil {
		return err
	}
	if err := stateDir.Read(groupstate.Round1Package, &selfPkg); err != nil {
		return err
	}

	collected := map[xid.XID]*frost.RoundPackage{owner.XID(): &selfPkg}
	responseARIDs := map[xid.XID]arid.ARID{}

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
			return frosterr.Newf(frosterr.RemoteRejection, "participant %s rejected invite: %s", peerXID, reason)
		}
		result, err := resp.Result()
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "extract dkgInviteResponse result")
		}
		if err := validateResultType(result, ResultInviteResponse); err != nil {
			return err
		}
		if err := validateGroupParam(result, groupID); err != nil {
			return err
		}
		responseARID, pkg, err := extractInviteResponse(result)
		if err != nil {
			return err
		}
		collected[peerXID] = pkg
		responseARIDs[peerXID] = responseARID
		return nil
	}
	if err := c.collectLoop(ctx, gr.PendingRequests, "round1", step); err != nil {
		return err
	}

	if err := stateDir.Write(groupstate.CollectedRound1, collected); err != nil {
		return err
	}

	round1ByID := make(map[frost.Identifier]*frost.RoundPackage, len(collected))
	for senderXID, pkg := range collected {
		round1ByID[forward[senderXID]] = pkg
	}
	selfR2Secret, selfR2Out, err := frost.Part2(&selfSecret, round1ByID, groupID[:])
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "run own part2")
	}
	if err := stateDir.Write(groupstate.Round2Secret, selfR2Secret); err != nil {
		return err
	}

	// round1 -> round2 dispatch: build one dkgRound2 request per
	// participant carrying every collected round1 package plus the
	// coordinator's own round2 share for that participant (computed
	// above, since the coordinator never sends itself a round2/respond
	// request), and mint a fresh collect-from ARID per participant for
	// round2 responses.
	newPending := make(map[xid.XID]*registry.PendingEntry, len(gr.PendingRequests))
	for peerXID, sendTo := range responseARIDs {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return err
		}
		collectFrom, err := arid.New()
		if err != nil {
			return frosterr.Wrap(frosterr.Cryptographic, err, "mint round2 collect-from arid")
		}
		params := []envelope.Assertion{
			{Predicate: "group", Object: envelope.NewARID(groupID)},
			{Predicate: "responseArid", Object: envelope.NewARID(collectFrom)},
		}
		for senderXID, pkg := range collected {
			b, err := marshalValue(pkg)
			if err != nil {
				return err
			}
			data, _ := b.AsBytes()
			params = append(params, envelope.Assertion{Predicate: "round1Package", Object: wrapXIDData(senderXID, data)})
		}
		ownShare, ok := selfR2Out[forward[peerXID]]
		if !ok {
			return frosterr.Newf(frosterr.Protocol, "no own round2 share computed for %s", peerXID)
		}
		shareBytes, err := marshalValue(ownShare)
		if err != nil {
			return err
		}
		data, _ := shareBytes.AsBytes()
		params = append(params, envelope.Assertion{Predicate: "round2Package", Object: wrapXIDData(owner.XID(), data)})
		if err := sendRequest(ctx, c.Client, owner, peerDoc, FunctionRound2, params, sendTo); err != nil {
			return err
		}
		newPending[peerXID] = &registry.PendingEntry{CollectFrom: &collectFrom}
	}
	gr.PendingRequests = newPending
	if err := c.Reg.Save(); err != nil {
		return err
	}
	return nil
}

// Round2 implements round2/collect immediately followed by the
// finalize dispatch. Because the coordinator already holds its own
// round2 secret (computed in Round1), it also runs its own Part3 here
// using the shares peers address to it, rather than sending itself a
// finalize request.
func (c *Coordinator) Round2(ctx context.Context, groupID arid.ARID) error {
	gr, err := c.groupRecord(groupID)
	if err != nil {
		return err
	}
	owner := c.Reg.Owner
	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)
	forward, _ := identity.Assign(gr.Participants)

	// bundles[recipient][sender] = round2 package sender produced for recipient.
	bundles := make(map[xid.XID]map[xid.XID][]byte)
	responseARIDs := map[xid.XID]arid.ARID{}

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
			return frosterr.Newf(frosterr.RemoteRejection, "participant %s rejected round2: %s", peerXID, reason)
		}
		result, err := resp.Result()
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "extract dkgRound2Response result")
		}
		if err := validateResultType(result, ResultRound2Response); err != nil {
			return err
		}
		if err := validateGroupParam(result, groupID); err != nil {
			return err
		}
		responseARID, err := resultARID(result, "responseArid")
		if err != nil {
			return err
		}
		for _, v := range result.All("recipient") {
			recipientXID, data, err := unwrapXIDData(v)
			if err != nil {
				return frosterr.Wrap(frosterr.Protocol, err, "parse round2 recipient entry")
			}
			if !memberOf(recipientXID, gr.Participants) {
				return frosterr.Newf(frosterr.Protocol, "round2 recipient %s not in group", recipientXID)
			}
			if bundles[recipientXID] == nil {
				bundles[recipientXID] = make(map[xid.XID][]byte)
			}
			bundles[recipientXID][peerXID] = data
		}
		responseARIDs[peerXID] = responseARID
		return nil
	}
	if err := c.collectLoop(ctx, gr.PendingRequests, "round2", step); err != nil {
		return err
	}

	if err := writeCollectedRound2(c.RegistryDir, groupID, bundles); err != nil {
		return err
	}

	var round1Collected map[xid.XID]*frost.RoundPackage
	if err := stateDir.Read(groupstate.CollectedRound1, &round1Collected); err != nil {
		return err
	}
	round1ByID := make(map[frost.Identifier]*frost.RoundPackage, len(round1Collected))
	for senderXID, pkg := range round1Collected {
		round1ByID[forward[senderXID]] = pkg
	}
	var selfR2Secret frost.Round2Secret
	if err := stateDir.Read(groupstate.Round2Secret, &selfR2Secret); err != nil {
		return err
	}
	ownReceivedByID := make(map[frost.Identifier]*frost.Round2Package, len(bundles[owner.XID()]))
	for senderXID, data := range bundles[owner.XID()] {
		var pkg frost.Round2Package
		if err := unmarshalInto(data, &pkg); err != nil {
			return err
		}
		ownReceivedByID[forward[senderXID]] = &pkg
	}
	selfKeyPkg, selfPubPkg, err := frost.Part3(&selfR2Secret, round1ByID, ownReceivedByID)
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "run own part3")
	}
	if err := stateDir.Write(groupstate.KeyPackage, selfKeyPkg); err != nil {
		return err
	}
	if err := stateDir.Write(groupstate.PublicKeyPackage, selfPubPkg); err != nil {
		return err
	}

	newPending := make(map[xid.XID]*registry.PendingEntry, len(responseARIDs))
	for peerXID, sendTo := range responseARIDs {
		peerDoc, err := c.participantDoc(peerXID)
		if err != nil {
			return err
		}
		collectFrom, err := arid.New()
		if err != nil {
			return frosterr.Wrap(frosterr.Cryptographic, err, "mint finalize collect-from arid")
		}
		params := []envelope.Assertion{
			{Predicate: "group", Object: envelope.NewARID(groupID)},
			{Predicate: "responseArid", Object: envelope.NewARID(collectFrom)},
		}
		for senderXID, data := range bundles[peerXID] {
			params = append(params, envelope.Assertion{Predicate: "round2Package", Object: wrapXIDData(senderXID, data)})
		}
		if err := sendRequest(ctx, c.Client, owner, peerDoc, FunctionFinalize, params, sendTo); err != nil {
			return err
		}
		newPending[peerXID] = &registry.PendingEntry{CollectFrom: &collectFrom}
	}
	gr.PendingRequests = newPending
	return c.Reg.Save()
}

// Finalize implements finalize/collect.
func (c *Coordinator) Finalize(ctx context.Context, groupID arid.ARID) error {
	gr, err := c.groupRecord(groupID)
	if err != nil {
		return err
	}
	owner := c.Reg.Owner
	stateDir := groupstate.ForGroup(c.RegistryDir, groupID)

	var selfKeyPkg frost.KeyPackage
	if err := stateDir.Read(groupstate.KeyPackage, &selfKeyPkg); err != nil {
		return err
	}
	var selfPubPkg frost.PublicKeyPackage
	if err := stateDir.Read(groupstate.PublicKeyPackage, &selfPubPkg); err != nil {
		return err
	}
	verifyingKey, err := selfPubPkg.VerifyingKey.MarshalJSON()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "marshal own verifying key")
	}
	selfKeyBytes, err := json.Marshal(selfKeyPkg)
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "marshal own key package")
	}
	collected := map[xid.XID]json.RawMessage{owner.XID(): selfKeyBytes}

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
			return frosterr.Newf(frosterr.RemoteRejection, "participant %s rejected finalize: %s", peerXID, reason)
		}
		result, err := resp.Result()
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "extract dkgFinalizeResponse result")
		}
		if err := validateResultType(result, ResultFinalizeResponse); err != nil {
			return err
		}
		if err := validateGroupParam(result, groupID); err != nil {
			return err
		}
		var pub frost.PublicKeyPackage
		if err := extractJSONField(result, "publicKeyPackage", &pub); err != nil {
			return err
		}
		vk, err := pub.VerifyingKey.MarshalJSON()
		if err != nil {
			return err
		}
		if verifyingKey == nil {
			verifyingKey = vk
		} else if string(verifyingKey) != string(vk) {
			return frosterr.Newf(frosterr.Protocol, "participant %s reported a different verifying key", peerXID)
		}
		keyPkgRaw, err := resultField(result, "keyPackage")
		if err != nil {
			return err
		}
		collected[peerXID] = keyPkgRaw
		return nil
	}
	if err := c.collectLoop(ctx, gr.PendingRequests, "finalize", step); err != nil {
		return err
	}

	if err := stateDir.Write(groupstate.CollectedFinal, collected); err != nil {
		return err
	}
	gr.VerifyingKey = verifyingKey
	gr.PendingRequests = nil
	return c.Reg.Save()
}

