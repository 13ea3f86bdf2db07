// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cryptol is a client for the Cryptol interpreter server.
//
// A Session holds the server's control socket. Every loaded module gets its
// own worker socket, so independent modules never wait on each other.
//
// # Transport Selection
//
// The scheme of the session address picks the transport:
//
//	tcp://127.0.0.1     ZeroMQ REQ, the stock cryptol-server (default)
//	ipc:///tmp/cryptol  ZeroMQ REQ over a Unix socket
//	frame://127.0.0.1   length-prefixed frames over TCP
//	http://127.0.0.1    JSON-RPC 2.0 gateway
//	grpc://127.0.0.1    gRPC gateway (go build -tags grpc)
//
// # Usage
//
//	session, err := cryptol.Connect(ctx, "tcp://127.0.0.1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Exit()
//
//	aes, err := session.LoadModule(ctx, "AES.cry")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, _ := cryptol.ParseBitVector("2b7e151628aed2a6abf7158809cf4f3c")
//	pt, _ := cryptol.ParseBitVector("3243f6a8885a308d313198a2e0370734")
//	ct, err := aes.Eval(ctx, "aesEncrypt (%s, %s)", pt, key)
//
//	result, err := aes.Prove(ctx, cryptol.ProverZ3, "\\k p -> aesDecrypt (aesEncrypt (p, k), k) == p")
//	if result.HasCounterexample() {
//	    fmt.Println(result.Counterexample())
//	}
//
// # Values
//
// Cryptol values map to bool, BitVector, Sequence, Tuple, Record and
// *Function. A zero-width word decodes to nil. Expressions take %s
// placeholders, rendered from Go values with ToExpr.
//
// # Interruption
//
// Cancelling the context of a call that is waiting on the server sends an
// interrupt for that module over the control socket and drains the
// interrupted reply, so the module stays usable. The returned error wraps
// both ErrInterrupted and the context's error.
package cryptol
