package domain

import (
	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

// Proposal is what the approver is shown: the automatic result, including
// the unresolved addresses with their candidates, and the request it answers.
type Proposal struct {
	Request Request
	Result  *Result
}

// DecisionAction is the approver's answer.
type DecisionAction int

const (
	// DecisionCancel aborts the resolution.
	DecisionCancel DecisionAction = iota
	// DecisionAccept accepts the proposal, possibly with replaced keys.
	DecisionAccept
	// DecisionSendUnencrypted accepts sending without encryption.
	DecisionSendUnencrypted
)

// Decision is returned by the approver. Nil key maps keep the proposed keys.
type Decision struct {
	Action         DecisionAction
	SigningKeys    map[certDomain.Protocol][]*certDomain.Certificate
	EncryptionKeys map[certDomain.Protocol]map[string][]*certDomain.Certificate
}

// Outcome is delivered once when a resolution finishes.
type Outcome struct {
	Success         bool
	SendUnencrypted bool
	Err             error
}
