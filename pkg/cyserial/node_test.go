// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import (
	"bytes"
	"testing"
)

// ============================================================
// Test Doubles
// ============================================================

// loopPort is an in-memory Port with scripted RX bytes and captured TX bytes.
type loopPort struct {
	rx      []byte
	tx      []byte
	txFull  bool // when set, Send refuses every byte
	rxCount int  // total bytes handed out via Receive
}

func (p *loopPort) Receive() (byte, bool) {
	if len(p.rx) == 0 {
		return 0, false
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	p.rxCount++
	return b, true
}

func (p *loopPort) Send(b byte) bool {
	if p.txFull {
		return false
	}
	p.tx = append(p.tx, b)
	return true
}

func (p *loopPort) queueFrame(tr *Transfer) {
	p.rx = append(p.rx, EncodeTransfer(tr)...)
}

// decodeTx parses everything the node transmitted.
func (p *loopPort) decodeTx(t *testing.T) []*CaptureRecord {
	t.Helper()
	return feedBytes(NewStreamParser(DefaultMaxPayload), p.tx)
}

// recordingReactor captures reactor callbacks and answers requests with a
// canned response.
type recordingReactor struct {
	responses [][]byte

	requests []struct {
		service PortID
		client  NodeID
		payload []byte
	}
	respondWith []byte
	respond     bool
}

func (r *recordingReactor) ProcessResponse(payload []byte) {
	r.responses = append(r.responses, append([]byte(nil), payload...))
}

func (r *recordingReactor) ProcessRequest(service PortID, client NodeID, payload, respBuf []byte) (int, bool) {
	r.requests = append(r.requests, struct {
		service PortID
		client  NodeID
		payload []byte
	}{service, client, append([]byte(nil), payload...)})
	if !r.respond {
		return 0, false
	}
	return copy(respBuf, r.respondWith), true
}

func responseTransfer(service PortID, source, destination NodeID, tid TransferID, payload []byte) *Transfer {
	return &Transfer{
		Metadata: Metadata{
			Priority:    DefaultPriority,
			Source:      source,
			Destination: destination,
			DataSpec:    service | DataSpecResponseMask,
			TransferID:  tid,
		},
		Payload: payload,
	}
}

// ============================================================
// Request Sending
// ============================================================

func TestNode_SendRequest_AnonymousFails(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)

	if node.SendRequest(5, 7, 42, []byte{1}) {
		t.Error("anonymous node must not issue requests")
	}
	if len(port.tx) != 0 {
		t.Error("anonymous node transmitted bytes")
	}
}

func TestNode_SendRequest_EncodesFrame(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)

	if !node.SendRequest(5, 7, 42, []byte{1, 2, 3}) {
		t.Fatal("SendRequest failed")
	}

	got := port.decodeTx(t)
	if len(got) != 1 {
		t.Fatalf("transmitted %d transfers, want 1", len(got))
	}
	tr := got[0].Transfer()
	svc, isReq := tr.IsRequest()
	if !isReq || svc != 5 {
		t.Errorf("classification: got (svc=%d, req=%v), want (5, true)", svc, isReq)
	}
	if tr.Source != 9 || tr.Destination != 7 || tr.TransferID != 42 {
		t.Errorf("addressing: got %+v", tr.Metadata)
	}
	if !bytes.Equal(tr.Payload, []byte{1, 2, 3}) {
		t.Errorf("payload: got %X", tr.Payload)
	}
}

func TestNode_SendRequest_PortBackpressure(t *testing.T) {
	port := &loopPort{txFull: true}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)

	if node.SendRequest(5, 7, 42, nil) {
		t.Fatal("SendRequest succeeded against a refusing port")
	}

	// No pending record was created: a matching response must be dropped.
	reactor := &recordingReactor{}
	port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{0xAA}))
	node.Poll(reactor)
	if len(reactor.responses) != 0 {
		t.Error("response accepted although the request was never sent")
	}
}

// ============================================================
// Response Correlation
// ============================================================

func TestNode_ResponseCorrelation(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{}

	if !node.SendRequest(5, 7, 42, []byte{1, 2, 3}) {
		t.Fatal("SendRequest failed")
	}

	// A response differing only in transfer id is dropped, and the pending
	// record must survive it.
	port.queueFrame(responseTransfer(5, 7, 9, 43, []byte{0xEE}))
	node.Poll(reactor)
	if len(reactor.responses) != 0 {
		t.Fatal("mismatched response delivered")
	}

	// The exact match is delivered exactly once and clears the record.
	port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{0xAB, 0xCD}))
	node.Poll(reactor)
	if len(reactor.responses) != 1 {
		t.Fatalf("got %d response deliveries, want 1", len(reactor.responses))
	}
	if !bytes.Equal(reactor.responses[0], []byte{0xAB, 0xCD}) {
		t.Errorf("response payload: got %X", reactor.responses[0])
	}

	// A duplicate of the same response arrives after the record is cleared.
	port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{0xAB, 0xCD}))
	node.Poll(reactor)
	if len(reactor.responses) != 1 {
		t.Errorf("duplicate response delivered, total %d", len(reactor.responses))
	}
}

func TestNode_ResponseMismatches(t *testing.T) {
	tests := []struct {
		name string
		tr   *Transfer
	}{
		{"wrong service", responseTransfer(6, 7, 9, 42, nil)},
		{"wrong server", responseTransfer(5, 8, 9, 42, nil)},
		{"wrong destination", responseTransfer(5, 7, 10, 42, nil)},
		{"wrong transfer id", responseTransfer(5, 7, 9, 41, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &loopPort{}
			node := NewNode(port, DefaultMaxPayload)
			node.SetLocalNodeID(9)
			reactor := &recordingReactor{}

			if !node.SendRequest(5, 7, 42, nil) {
				t.Fatal("SendRequest failed")
			}
			port.queueFrame(tt.tr)
			node.Poll(reactor)
			if len(reactor.responses) != 0 {
				t.Fatal("mismatched response delivered")
			}

			// The pending record must remain: the true response is still
			// accepted afterwards.
			port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{1}))
			node.Poll(reactor)
			if len(reactor.responses) != 1 {
				t.Error("pending record lost after a mismatched response")
			}
		})
	}
}

func TestNode_CancelRequest(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{}

	if !node.SendRequest(5, 7, 42, nil) {
		t.Fatal("SendRequest failed")
	}
	node.CancelRequest()

	port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{1}))
	node.Poll(reactor)
	if len(reactor.responses) != 0 {
		t.Error("response delivered after cancellation")
	}

	// Cancel with nothing pending is a no-op.
	node.CancelRequest()
}

func TestNode_SecondRequestOverwritesPending(t *testing.T) {
	// Last request wins: issuing a second request without cancelling first
	// silently replaces the pending record. This is intentional single-slot
	// behavior; see the transport design notes.
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{}

	if !node.SendRequest(5, 7, 42, nil) {
		t.Fatal("first SendRequest failed")
	}
	if !node.SendRequest(6, 8, 43, nil) {
		t.Fatal("second SendRequest failed")
	}

	// The first request's response is now a stranger.
	port.queueFrame(responseTransfer(5, 7, 9, 42, []byte{1}))
	node.Poll(reactor)
	if len(reactor.responses) != 0 {
		t.Error("response to the overwritten request delivered")
	}

	// The second request's response is delivered.
	port.queueFrame(responseTransfer(6, 8, 9, 43, []byte{2}))
	node.Poll(reactor)
	if len(reactor.responses) != 1 {
		t.Error("response to the live request not delivered")
	}
}

// ============================================================
// Request Serving
// ============================================================

func TestNode_ServesRequest(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{respond: true, respondWith: []byte{0xCA, 0xFE}}

	port.queueFrame(&Transfer{
		Metadata: Metadata{
			Priority:    2,
			Source:      3,
			Destination: 9,
			DataSpec:    5 | DataSpecRequestMask,
			TransferID:  77,
		},
		Payload: []byte{0x10, 0x20},
	})
	node.Poll(reactor)

	if len(reactor.requests) != 1 {
		t.Fatalf("got %d request deliveries, want 1", len(reactor.requests))
	}
	req := reactor.requests[0]
	if req.service != 5 || req.client != 3 {
		t.Errorf("request routing: got svc=%d client=%d", req.service, req.client)
	}
	if !bytes.Equal(req.payload, []byte{0x10, 0x20}) {
		t.Errorf("request payload: got %X", req.payload)
	}

	// The response goes back to the requester, reusing transfer id and
	// priority.
	got := port.decodeTx(t)
	if len(got) != 1 {
		t.Fatalf("transmitted %d transfers, want 1", len(got))
	}
	resp := got[0].Transfer()
	svc, isResp := resp.IsResponse()
	if !isResp || svc != 5 {
		t.Errorf("classification: got (svc=%d, resp=%v), want (5, true)", svc, isResp)
	}
	if resp.Source != 9 || resp.Destination != 3 || resp.TransferID != 77 || resp.Priority != 2 {
		t.Errorf("response metadata: got %+v", resp.Metadata)
	}
	if !bytes.Equal(resp.Payload, []byte{0xCA, 0xFE}) {
		t.Errorf("response payload: got %X", resp.Payload)
	}
}

func TestNode_RequestSuppressedResponse(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{respond: false}

	port.queueFrame(&Transfer{
		Metadata: Metadata{
			Priority:    7,
			Source:      3,
			Destination: 9,
			DataSpec:    5 | DataSpecRequestMask,
			TransferID:  1,
		},
	})
	node.Poll(reactor)

	if len(reactor.requests) != 1 {
		t.Fatalf("request not delivered")
	}
	if len(port.tx) != 0 {
		t.Error("response transmitted although the reactor declined")
	}
}

func TestNode_IgnoresForeignAndAnonymousRequests(t *testing.T) {
	request := func(dest NodeID) *Transfer {
		return &Transfer{
			Metadata: Metadata{
				Priority:    7,
				Source:      3,
				Destination: dest,
				DataSpec:    5 | DataSpecRequestMask,
				TransferID:  1,
			},
		}
	}

	t.Run("wrong destination", func(t *testing.T) {
		port := &loopPort{}
		node := NewNode(port, DefaultMaxPayload)
		node.SetLocalNodeID(9)
		reactor := &recordingReactor{respond: true, respondWith: []byte{1}}

		port.queueFrame(request(10))
		node.Poll(reactor)
		if len(reactor.requests) != 0 {
			t.Error("request for another node delivered")
		}
	})

	t.Run("anonymous local node", func(t *testing.T) {
		port := &loopPort{}
		node := NewNode(port, DefaultMaxPayload)
		reactor := &recordingReactor{respond: true, respondWith: []byte{1}}

		port.queueFrame(request(9))
		node.Poll(reactor)
		if len(reactor.requests) != 0 {
			t.Error("request delivered to an anonymous node")
		}
	})
}

func TestNode_IgnoresMessages(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)
	node.SetLocalNodeID(9)
	reactor := &recordingReactor{respond: true, respondWith: []byte{1}}

	port.queueFrame(&Transfer{
		Metadata: Metadata{
			Priority:    7,
			Source:      3,
			Destination: 9,
			DataSpec:    100, // plain subject id, no role bits
			TransferID:  1,
		},
		Payload: []byte{1, 2},
	})
	node.Poll(reactor)

	if len(reactor.requests) != 0 || len(reactor.responses) != 0 {
		t.Error("message-shaped transfer reached the reactor")
	}
	if len(port.tx) != 0 {
		t.Error("message-shaped transfer triggered a transmission")
	}
}

// ============================================================
// Publishing and Polling
// ============================================================

func TestNode_PublishMessage(t *testing.T) {
	port := &loopPort{}
	node := NewNode(port, DefaultMaxPayload)

	if node.PublishMessage(7509, 11, []byte{1}) {
		t.Error("anonymous node must not publish")
	}

	node.SetLocalNodeID(9)
	if !node.PublishMessage(7509, 11, []byte{1}) {
		t.Fatal("PublishMessage failed")
	}

	got := port.decodeTx(t)
	if len(got) != 1 {
		t.Fatalf("transmitted %d transfers, want 1", len(got))
	}
	tr := got[0].Transfer()
	if _, isReq := tr.IsRequest(); isReq {
		t.Error("message classified as request")
	}
	if _, isResp := tr.IsResponse(); isResp {
		t.Error("message classified as response")
	}
	if tr.DataSpec != 7509 || tr.Source != 9 || tr.TransferID != 11 {
		t.Errorf("message metadata: got %+v", tr.Metadata)
	}
}

func TestNode_PollIsBounded(t *testing.T) {
	const maxPayload = 16
	port := &loopPort{rx: bytes.Repeat([]byte{0x00}, maxPayload*3+100)}
	node := NewNode(port, maxPayload)
	node.Poll(&recordingReactor{})

	if port.rxCount != maxPayload*3 {
		t.Errorf("Poll consumed %d bytes, want %d", port.rxCount, maxPayload*3)
	}
}

func TestNode_PollStopsWhenPortRunsDry(t *testing.T) {
	port := &loopPort{rx: []byte{0x01, 0x02}}
	node := NewNode(port, DefaultMaxPayload)
	node.Poll(&recordingReactor{})

	if port.rxCount != 2 {
		t.Errorf("Poll consumed %d bytes, want 2", port.rxCount)
	}
}
