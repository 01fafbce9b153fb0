// Package transport issues HTTP requests and opens websocket streams against a
// single device.
//
// A transport is immutable once built: its address, timeout, headers and
// credentials are fixed by the Config passed to New. Changing credentials
// means building a new transport, which is how device sessions implement
// re-authentication.
//
// Every completed exchange yields a *Response regardless of status code.
// An error is returned only when the request never completed (DNS failure,
// refused connection, timeout, cancelled context), which lets callers tell
// "device unreachable" apart from "device said no".
//
//	t := transport.New(transport.Config{
//	    Address:    "192.168.1.20:8080",
//	    Credential: &transport.Credential{Username: "Administrator", Password: "p@ss"},
//	})
//	resp, err := t.Get(ctx, "/default.htm")
package transport
