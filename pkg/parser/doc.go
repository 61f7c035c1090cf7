// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the interface for message inspection and modification.
//
// Parsers sit between the TCP server and the handlers. The server owns one
// buffered reader per direction of a connection and calls Parse for each
// message:
//
//	Upstream (Client → Backend):
//	  1. Read a request from the client
//	  2. Extract credentials
//	  3. Call handler.Auth* methods
//	  4. If authorized, write the (possibly modified) request to the backend
//
//	Downstream (Backend → Client):
//	  1. Read a response from the backend
//	  2. Call handler.OnResponse
//	  3. Write the response to the client
//
// A refused request is returned as a *RejectError. Its Response method builds
// the reply the server writes back to the client.
package parser
