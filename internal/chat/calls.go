package chat

import (
	"encoding/json"

	"github.com/real-rm/chatsocket/internal/protocol"
)

// StartCall announces a call in chatID to participants. Media is
// negotiated peer to peer; the server only relays the signaling.
// Returns false when the command was invalid or dropped.
func (c *Controller) StartCall(chatID, callID string, callType protocol.CallType, participants []string) bool {
	c.logger.Info("Starting call", "chat", chatID, "call", callID, "type", string(callType), "participants", len(participants))
	return c.socket.Send(protocol.CallStarted{
		CallID:       callID,
		ChatID:       chatID,
		CallType:     callType,
		Participants: participants,
	})
}

// SendICECandidate relays one ICE candidate to the peer to
func (c *Controller) SendICECandidate(callID, to string, candidate json.RawMessage) bool {
	return c.socket.Send(protocol.CallICECandidate{CallID: callID, To: to, Candidate: candidate})
}

// SendSDP relays an SDP offer, or an answer when answer is true, to the peer to
func (c *Controller) SendSDP(callID, to, sdp string, answer bool) bool {
	return c.socket.Send(protocol.CallSDP{Answer: answer, CallID: callID, To: to, SDP: sdp})
}
