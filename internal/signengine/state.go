package signengine

import (
	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/xid"
)

// Start is the coordinator's session-state file (spec §6's start.json):
// ARID layout, participants, target UR, threshold.
type Start struct {
	GroupID      arid.ARID            `json:"group_id"`
	SessionID    arid.ARID            `json:"session_id"`
	Coordinator  xid.XID              `json:"coordinator"`
	Participants []xid.XID            `json:"participants"`
	Threshold    int                  `json:"threshold"`
	TargetUR     string               `json:"target_ur"`
	CommitARIDs  map[xid.XID]arid.ARID `json:"commit_arids"`
}

// Receive is the participant's view after the receive step
// (sign_receive.json).
type Receive struct {
	GroupID            arid.ARID `json:"group_id"`
	SessionID          arid.ARID `json:"session_id"`
	Coordinator        xid.XID   `json:"coordinator"`
	Participants       []xid.XID `json:"participants"`
	Threshold          int       `json:"threshold"`
	TargetUR           string    `json:"target_ur"`
	CommitResponseARID arid.ARID `json:"commit_response_arid"`
	InviteRequestID    arid.ARID `json:"invite_request_id"`
}

// Commit holds one party's own per-session nonces and commitments
// (commit.json). Both the coordinator (for its own self-participation)
// and every participant persist one of these under their own session
// directory.
type Commit struct {
	SessionID   arid.ARID                `json:"session_id"`
	Nonces      frost.SigningNonces      `json:"nonces"`
	Commitments frost.SigningCommitments `json:"commitments"`
	TargetUR    string                   `json:"target_ur"`
	ShareARID   arid.ARID                `json:"share_arid"`
}

// Commitments is the coordinator's aggregate view after round1
// (commitments.json): every participant's commitments plus the ARID at
// which the coordinator will collect each participant's signature
// share.
type Commitments struct {
	SessionID          arid.ARID                           `json:"session_id"`
	Commitments         map[xid.XID]frost.SigningCommitments `json:"commitments"`
	ShareResponseARIDs map[xid.XID]arid.ARID               `json:"share_response_arids"`
}

// Share is a participant's own signature share plus the commitment set
// it was computed against and the ARID it will next listen at for
// finalize (share.json).
type Share struct {
	SessionID    arid.ARID                            `json:"session_id"`
	Share        frost.SignatureShare                 `json:"share"`
	Commitments  map[xid.XID]frost.SigningCommitments `json:"commitments"`
	FinalizeARID arid.ARID                             `json:"finalize_arid"`
}

// Final is the terminal artifact both coordinator and participant
// persist (final.json): the aggregated signature, the signed target UR,
// and every participant's contributed share for cross-checking.
type Final struct {
	SessionID    arid.ARID                     `json:"session_id"`
	Signature    []byte                        `json:"signature"`
	SignedTarget string                        `json:"signed_target_ur"`
	Shares       map[xid.XID]frost.SignatureShare `json:"shares"`
}
