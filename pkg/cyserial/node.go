// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

// Port bridges the transport with the platform-specific byte channel, e.g. a
// UART driver or a socket adapter. Both operations are non-blocking by
// contract.
type Port interface {
	// Receive polls the next inbound byte. ok is false when nothing is
	// available.
	Receive() (b byte, ok bool)
	// Send enqueues one byte for transmission. It returns false when no
	// space is available.
	Send(b byte) bool
}

// Reactor is the application layer sitting on top of the transport. It
// receives correlated responses and answers incoming requests.
type Reactor interface {
	// ProcessResponse delivers the payload of a response matching the
	// pending request. The payload is borrowed parser memory; copy it out
	// if it must be retained.
	ProcessResponse(payload []byte)
	// ProcessRequest handles an incoming service request addressed to this
	// node. A response of n bytes is written into respBuf and (n, true) is
	// returned; (0, false) suppresses the response. The request payload is
	// borrowed parser memory.
	ProcessRequest(service PortID, client NodeID, payload, respBuf []byte) (n int, respond bool)
}

// pendingRequest records the single request that may be outstanding.
type pendingRequest struct {
	serverNodeID NodeID
	serviceID    PortID
	transferID   TransferID
}

// Node drives a single Cyphal/serial link: it feeds inbound bytes through
// the stream parser, classifies completed transfers, forwards them to the
// reactor, and encodes outbound requests, responses and messages.
//
// Node is not safe for concurrent use; all work happens synchronously inside
// the calling goroutine, and nothing ever blocks.
type Node struct {
	port       Port
	parser     *StreamParser
	maxPayload int
	localID    NodeID
	pending    *pendingRequest
	respBuf    []byte
}

// NewNode creates a node over the given port, handling payloads up to
// maxPayload bytes. The node starts anonymous; it must be assigned an
// address with SetLocalNodeID before it can issue requests, answer them, or
// publish. An anonymous node still receives and parses frames.
func NewNode(port Port, maxPayload int) *Node {
	return &Node{
		port:       port,
		parser:     NewStreamParser(maxPayload),
		maxPayload: maxPayload,
		localID:    AnonymousNodeID,
		respBuf:    make([]byte, maxPayload),
	}
}

// SetLocalNodeID assigns the node's address. Passing AnonymousNodeID returns
// the node to the unassigned state.
func (n *Node) SetLocalNodeID(id NodeID) {
	n.localID = id
}

// LocalNodeID returns the node's address, AnonymousNodeID if unassigned.
func (n *Node) LocalNodeID() NodeID {
	return n.localID
}

// Reset resets the frame parser. Call it when the communication channel is
// reinitialized.
func (n *Node) Reset() {
	n.parser.Reset()
}

// Poll drains available inbound bytes and dispatches completed transfers to
// the reactor. Work per call is bounded at three times the maximum transfer
// size; the call returns early once the port runs dry. It never blocks.
func (n *Node) Poll(reactor Reactor) {
	limit := n.maxPayload * 3
	for i := 0; i < limit; i++ {
		b, ok := n.port.Receive()
		if !ok {
			break
		}
		if tr := n.parser.Update(b); tr != nil {
			n.processReceivedTransfer(reactor, tr)
		}
	}
}

func (n *Node) processReceivedTransfer(reactor Reactor, tr *Transfer) {
	if respID, isResp := tr.IsResponse(); isResp {
		if n.pending == nil || n.localID.IsAnonymous() {
			return
		}
		match := respID == n.pending.serviceID &&
			tr.Source == n.pending.serverNodeID &&
			tr.Destination == n.localID &&
			tr.TransferID == n.pending.transferID
		if match {
			reactor.ProcessResponse(tr.Payload)
			n.pending = nil
		}
		// A mismatched response is dropped but the pending record stays, so
		// a later matching response is still accepted.
		return
	}

	if reqID, isReq := tr.IsRequest(); isReq {
		if n.localID.IsAnonymous() || tr.Destination != n.localID {
			return
		}
		if size, respond := reactor.ProcessRequest(reqID, tr.Source, tr.Payload, n.respBuf); respond {
			resp := Transfer{
				Metadata: Metadata{
					Priority:    tr.Priority,
					Source:      n.localID,
					Destination: tr.Source,
					DataSpec:    reqID | DataSpecResponseMask,
					TransferID:  tr.TransferID,
				},
				Payload: n.respBuf[:size],
			}
			_ = n.transmit(&resp) // Backpressure here is not retried.
		}
		return
	}

	// Message-shaped transfer: nothing to do at this layer.
}

// SendRequest encodes and transmits a service request and records it as the
// pending request. It fails if the node is anonymous or the port refuses a
// byte.
//
// A previously pending request is overwritten unconditionally: last request
// wins. Call CancelRequest first if the distinction matters.
func (n *Node) SendRequest(service PortID, server NodeID, transferID TransferID, payload []byte) bool {
	if n.localID.IsAnonymous() {
		return false
	}
	tr := Transfer{
		Metadata: Metadata{
			Priority:    DefaultPriority,
			Source:      n.localID,
			Destination: server,
			DataSpec:    service | DataSpecRequestMask,
			TransferID:  transferID,
		},
		Payload: payload,
	}
	if !n.transmit(&tr) {
		return false
	}
	n.pending = &pendingRequest{
		serverNodeID: server,
		serviceID:    service,
		transferID:   transferID,
	}
	return true
}

// CancelRequest clears the pending request record, whether or not one
// exists. Responses arriving afterwards are dropped.
func (n *Node) CancelRequest() {
	n.pending = nil
}

// PublishMessage encodes and transmits a message on the given subject. No
// response is expected or tracked. It fails if the node is anonymous or the
// port refuses a byte.
func (n *Node) PublishMessage(subject PortID, transferID TransferID, payload []byte) bool {
	if n.localID.IsAnonymous() {
		return false
	}
	tr := Transfer{
		Metadata: Metadata{
			Priority:    DefaultPriority,
			Source:      n.localID,
			Destination: AnonymousNodeID,
			DataSpec:    subject,
			TransferID:  transferID,
		},
		Payload: payload,
	}
	return n.transmit(&tr)
}

func (n *Node) transmit(tr *Transfer) bool {
	return Transmit(n.port.Send, tr)
}
