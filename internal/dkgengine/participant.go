package dkgengine

import (
	"context"
	"encoding/json"
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

// Participant drives the participant-side mirror of Coordinator's
// operations (spec §4.4): invite/respond, round2/respond,
// finalize/respond.
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
	return gr, nil
}

func (p *Participant) participantDoc(x xid.XID) (*xid.Document, error) {
	rec, ok := p.Reg.Participants[x]
	if !ok {
		return nil, frosterr.Newf(frosterr.Protocol, "unknown participant %s", x)
	}
	return rec.Document, nil
}

// inviteParticipantEntry is the parsed shape of one repeated
// "participant" assertion in a dkgInvite request.
type inviteParticipantEntry struct {
	Doc         *xid.Document
	CollectFrom []byte
}

func parseInviteParticipants(req *envelope.Request) ([]inviteParticipantEntry, error) {
	var out []inviteParticipantEntry
	for _, v := range req.Params("participant") {
		e, err := v.AsEnvelope()
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Protocol, err, "parse invite participant entry")
		}
		docBytes, err := e.Subject.AsBytes()
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Protocol, err, "parse invite participant document")
		}
		var doc xid.Document
		if err := json.Unmarshal(docBytes, &doc); err != nil {
			return nil, frosterr.Wrap(frosterr.Protocol, err, "decode invite participant document")
		}
		collectFromVal, err := e.One("collectFrom")
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Protocol, err, "missing invite collectFrom")
		}
		collectFrom, err := collectFromVal.AsBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, inviteParticipantEntry{Doc: &doc, CollectFrom: collectFrom})
	}
	return out, nil
}

// InviteRespond implements spec §4.4's invite/respond: decrypt and
// verify the invite, and either run Part1 and accept or post a signed
// rejection, always replying at the caller's own encrypted collect-from
// ARID.
func (p *Participant) InviteRespond(ctx context.Context, inviteARID arid.ARID, accept bool, reason string) (arid.ARID, error) {
	owner := p.Reg.Owner
	if owner == nil {
		return arid.ARID{}, frosterr.New(frosterr.Configuration, "no registry owner set")
	}

	raw, found, err := p.Client.Get(ctx, inviteARID, p.Timeout)
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Transport, err, "fetch invite")
	}
	if !found {
		return arid.ARID{}, frosterr.New(frosterr.Timeout, "Timeout waiting for invite at that location")
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return arid.ARID{}, err
	}
	fn, err := req.Function()
	if err != nil {
		return arid.ARID{}, err
	}
	if fn != FunctionInvite {
		return arid.ARID{}, frosterr.Newf(frosterr.Protocol, "expected %s request, got %s", FunctionInvite, fn)
	}

	groupVal, err := req.Param("group")
	if err != nil {
		return arid.ARID{}, err
	}
	groupID, err := groupVal.AsARID()
	if err != nil {
		return arid.ARID{}, err
	}
	minSignersVal, err := req.Param("minSigners")
	if err != nil {
		return arid.ARID{}, err
	}
	threshold64, err := minSignersVal.AsInt()
	if err != nil {
		return arid.ARID{}, err
	}
	threshold := int(threshold64)
	charterVal, err := req.Param("charter")
	if err != nil {
		return arid.ARID{}, err
	}
	charter, err := charterVal.AsString()
	if err != nil {
		return arid.ARID{}, err
	}

	entries, err := parseInviteParticipants(req)
	if err != nil {
		return arid.ARID{}, err
	}
	var ownCollectFromCipher []byte
	allXIDs := []xid.XID{sender.XID()}
	for _, e := range entries {
		allXIDs = append(allXIDs, e.Doc.XID())
		if e.Doc.XID() == owner.XID() {
			ownCollectFromCipher = e.CollectFrom
		} else {
			if err := p.Reg.AddParticipant(e.Doc, ""); err != nil {
				return arid.ARID{}, err
			}
		}
	}
	if err := p.Reg.AddParticipant(sender, ""); err != nil {
		return arid.ARID{}, err
	}
	if ownCollectFromCipher == nil {
		return arid.ARID{}, frosterr.New(frosterr.Protocol, "invite does not name this participant")
	}

	priv, err := owner.EncryptionPrivateKey()
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Configuration, err, "missing local encryption private key")
	}
	collectFrom32, err := envelope.DecryptARIDFrom(ownCollectFromCipher, priv)
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Cryptographic, err, "decrypt collect-from arid")
	}
	replyAt := arid.ARID(collectFrom32)

	requestID, err := req.RequestID()
	if err != nil {
		return arid.ARID{}, err
	}

	if !accept {
		signed, err := envelope.BuildErrorResponse(owner, requestID, reason, nil)
		if err != nil {
			return arid.ARID{}, frosterr.Wrap(frosterr.Cryptographic, err, "build invite rejection")
		}
		if err := postSealedResponse(ctx, p.Client, owner, sender, signed, replyAt); err != nil {
			return arid.ARID{}, err
		}
		return groupID, nil
	}

	allXIDs = identity.Sorted(allXIDs)
	forward, _ := identity.Assign(allXIDs)
	n := len(allXIDs)

	secret, pkg, err := frost.Part1(forward[owner.XID()], n, threshold, groupID[:])
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Cryptographic, err, "run part1")
	}

	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	if err := stateDir.Write(groupstate.Round1Secret, secret); err != nil {
		return arid.ARID{}, err
	}
	if err := stateDir.Write(groupstate.Round1Package, pkg); err != nil {
		return arid.ARID{}, err
	}

	nextListen, err := arid.New()
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Cryptographic, err, "mint round2 listen arid")
	}

	pkgBytes, err := json.Marshal(pkg)
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.IO, err, "marshal own round1 package")
	}
	result := envelope.NewSubject(envelope.NewString(ResultInviteResponse))
	result.Assert("group", envelope.NewARID(groupID))
	result.Assert("responseArid", envelope.NewARID(nextListen))
	result.Assert("round1Package", envelope.NewBytes(pkgBytes))

	signed, err := envelope.BuildResultResponse(owner, requestID, result, nil, "")
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Cryptographic, err, "build invite response")
	}
	if err := postSealedResponse(ctx, p.Client, owner, sender, signed, replyAt); err != nil {
		return arid.ARID{}, err
	}

	gr := &registry.GroupRecord{
		GroupID:         groupID,
		Charter:         charter,
		Threshold:       threshold,
		Coordinator:     sender.XID(),
		Participants:    allXIDs,
		ListeningAtARID: &nextListen,
		Contributions: registry.Contributions{
			Round1Secret:  groupstate.Round1Secret,
			Round1Package: groupstate.Round1Package,
		},
	}
	if err := p.Reg.RecordGroup(gr); err != nil {
		return arid.ARID{}, err
	}
	if err := p.Reg.Save(); err != nil {
		return arid.ARID{}, err
	}
	return groupID, nil
}

// Round2Respond implements round2/respond: run Part2 locally over the
// broadcast round1 package set, stash the coordinator's own round2
// share (delivered inline with this request, since the coordinator
// never sends itself a round2/respond), and reply with the shares this
// participant computed for every other participant.
func (p *Participant) Round2Respond(ctx context.Context, groupID arid.ARID) error {
	owner := p.Reg.Owner
	gr, err := p.groupRecord(groupID)
	if err != nil {
		return err
	}
	if gr.ListeningAtARID == nil {
		return frosterr.New(frosterr.Configuration, "not currently listening for a round2 request in this group")
	}

	raw, found, err := p.Client.Get(ctx, *gr.ListeningAtARID, p.Timeout)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "fetch round2 request")
	}
	if !found {
		return frosterr.New(frosterr.Timeout, "Timeout waiting for round2 request")
	}
	coordDoc, err := p.participantDoc(gr.Coordinator)
	if err != nil {
		return err
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return err
	}
	if sender.XID() != gr.Coordinator {
		return frosterr.New(frosterr.Protocol, "round2 request not from the recorded coordinator")
	}
	fn, err := req.Function()
	if err != nil {
		return err
	}
	if fn != FunctionRound2 {
		return frosterr.Newf(frosterr.Protocol, "expected %s request, got %s", FunctionRound2, fn)
	}
	if err := validateGroupParam(req.Env, groupID); err != nil {
		return err
	}

	collected := make(map[xid.XID]*frost.RoundPackage)
	for _, v := range req.Params("round1Package") {
		senderXID, data, err := unwrapXIDData(v)
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "parse round1 package entry")
		}
		var pkg frost.RoundPackage
		if err := unmarshalInto(data, &pkg); err != nil {
			return err
		}
		collected[senderXID] = &pkg
	}
	coordVal, err := req.Param("round2Package")
	if err != nil {
		return err
	}
	coordXID, coordData, err := unwrapXIDData(coordVal)
	if err != nil {
		return frosterr.Wrap(frosterr.Protocol, err, "parse coordinator round2 share")
	}
	var coordShare frost.Round2Package
	if err := unmarshalInto(coordData, &coordShare); err != nil {
		return err
	}

	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	var selfSecret frost.RoundSecret
	if err := stateDir.Read(groupstate.Round1Secret, &selfSecret); err != nil {
		return err
	}
	if err := stateDir.Write(groupstate.CollectedRound1, collected); err != nil {
		return err
	}

	forward, inverse := identity.Assign(gr.Participants)
	round1ByID := make(map[frost.Identifier]*frost.RoundPackage, len(collected))
	for senderXID, pkg := range collected {
		round1ByID[forward[senderXID]] = pkg
	}
	secret2, out2, err := frost.Part2(&selfSecret, round1ByID, groupID[:])
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "run part2")
	}
	if err := stateDir.Write(groupstate.Round2Secret, secret2); err != nil {
		return err
	}
	received := map[xid.XID]*frost.Round2Package{coordXID: &coordShare}
	if err := stateDir.Write(groupstate.CollectedRound2, received); err != nil {
		return err
	}

	sendToVal, err := req.Param("responseArid")
	if err != nil {
		return err
	}
	sendTo, err := sendToVal.AsARID()
	if err != nil {
		return err
	}

	nextListen, err := arid.New()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "mint finalize listen arid")
	}

	result := envelope.NewSubject(envelope.NewString(ResultRound2Response))
	result.Assert("group", envelope.NewARID(groupID))
	result.Assert("responseArid", envelope.NewARID(nextListen))
	for id, pkg := range out2 {
		recipientXID, ok := inverse[id]
		if !ok {
			continue
		}
		b, err := json.Marshal(pkg)
		if err != nil {
			return frosterr.Wrap(frosterr.IO, err, "marshal round2 package")
		}
		result.Assert("recipient", wrapXIDData(recipientXID, b))
	}

	requestID, err := req.RequestID()
	if err != nil {
		return err
	}
	signed, err := envelope.BuildResultResponse(owner, requestID, result, nil, "")
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "build round2 response")
	}
	if err := postSealedResponse(ctx, p.Client, owner, coordDoc, signed, sendTo); err != nil {
		return err
	}

	gr.ListeningAtARID = &nextListen
	gr.Contributions.Round2Secret = groupstate.Round2Secret
	return p.Reg.Save()
}

// FinalizeRespond implements finalize/respond: combine the
// coordinator's share (stashed during Round2Respond) with the
// peer-to-peer shares relayed in the finalize request, run Part3, and
// report the resulting key package.
func (p *Participant) FinalizeRespond(ctx context.Context, groupID arid.ARID) error {
	owner := p.Reg.Owner
	gr, err := p.groupRecord(groupID)
	if err != nil {
		return err
	}
	if gr.ListeningAtARID == nil {
		return frosterr.New(frosterr.Configuration, "not currently listening for a finalize request in this group")
	}

	raw, found, err := p.Client.Get(ctx, *gr.ListeningAtARID, p.Timeout)
	if err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "fetch finalize request")
	}
	if !found {
		return frosterr.New(frosterr.Timeout, "Timeout waiting for finalize request")
	}
	coordDoc, err := p.participantDoc(gr.Coordinator)
	if err != nil {
		return err
	}
	req, sender, err := parseSignedRequest(raw, owner)
	if err != nil {
		return err
	}
	if sender.XID() != gr.Coordinator {
		return frosterr.New(frosterr.Protocol, "finalize request not from the recorded coordinator")
	}
	fn, err := req.Function()
	if err != nil {
		return err
	}
	if fn != FunctionFinalize {
		return frosterr.Newf(frosterr.Protocol, "expected %s request, got %s", FunctionFinalize, fn)
	}
	if err := validateGroupParam(req.Env, groupID); err != nil {
		return err
	}

	stateDir := groupstate.ForGroup(p.RegistryDir, groupID)
	var received map[xid.XID]*frost.Round2Package
	if err := stateDir.Read(groupstate.CollectedRound2, &received); err != nil {
		return err
	}
	for _, v := range req.Params("round2Package") {
		senderXID, data, err := unwrapXIDData(v)
		if err != nil {
			return frosterr.Wrap(frosterr.Protocol, err, "parse round2 package entry")
		}
		var pkg frost.Round2Package
		if err := unmarshalInto(data, &pkg); err != nil {
			return err
		}
		received[senderXID] = &pkg
	}
	if err := stateDir.Write(groupstate.CollectedRound2, received); err != nil {
		return err
	}

	var round1Collected map[xid.XID]*frost.RoundPackage
	if err := stateDir.Read(groupstate.CollectedRound1, &round1Collected); err != nil {
		return err
	}
	var secret2 frost.Round2Secret
	if err := stateDir.Read(groupstate.Round2Secret, &secret2); err != nil {
		return err
	}

	forward, _ := identity.Assign(gr.Participants)
	round1ByID := make(map[frost.Identifier]*frost.RoundPackage, len(round1Collected))
	for senderXID, pkg := range round1Collected {
		round1ByID[forward[senderXID]] = pkg
	}
	round2ByID := make(map[frost.Identifier]*frost.Round2Package, len(received))
	for senderXID, pkg := range received {
		round2ByID[forward[senderXID]] = pkg
	}

	keyPkg, pubPkg, err := frost.Part3(&secret2, round1ByID, round2ByID)
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "run part3")
	}
	if err := stateDir.Write(groupstate.KeyPackage, keyPkg); err != nil {
		return err
	}
	if err := stateDir.Write(groupstate.PublicKeyPackage, pubPkg); err != nil {
		return err
	}

	keyBytes, err := json.Marshal(keyPkg)
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "marshal key package")
	}
	pubBytes, err := json.Marshal(pubPkg)
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "marshal public key package")
	}

	sendToVal, err := req.Param("responseArid")
	if err != nil {
		return err
	}
	sendTo, err := sendToVal.AsARID()
	if err != nil {
		return err
	}

	result := envelope.NewSubject(envelope.NewString(ResultFinalizeResponse))
	result.Assert("group", envelope.NewARID(groupID))
	result.Assert("keyPackage", envelope.NewBytes(keyBytes))
	result.Assert("publicKeyPackage", envelope.NewBytes(pubBytes))

	requestID, err := req.RequestID()
	if err != nil {
		return err
	}
	signed, err := envelope.BuildResultResponse(owner, requestID, result, nil, "")
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "build finalize response")
	}
	if err := postSealedResponse(ctx, p.Client, owner, coordDoc, signed, sendTo); err != nil {
		return err
	}

	verifyingKey, err := pubPkg.VerifyingKey.MarshalJSON()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "marshal verifying key")
	}
	gr.VerifyingKey = verifyingKey
	gr.Contributions.KeyPackage = groupstate.KeyPackage
	gr.ListeningAtARID = nil
	return p.Reg.Save()
}

// postSealedResponse signs is already done by the caller; this seals
// the signed response envelope to recipient and posts it at destARID.
func postSealedResponse(ctx context.Context, client rendezvous.Client, sender *xid.Document, recipient *xid.Document, signed *envelope.Envelope, destARID arid.ARID) error {
	sealed, err := envelope.SealEnvelope(signed, []*xid.Document{recipient})
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "seal response")
	}
	data, err := sealed.Marshal()
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "encode response")
	}
	if err := client.Put(ctx, destARID, data); err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "post response")
	}
	return nil
}
