// Package storage defines the Persistence Gateway: the read and write
// contracts the season orchestrator and its inbound handlers depend on.
//
// Every multi-row change runs inside Gateway.Atomic so a step's effects,
// its season cursor update, and its audit events commit together or not at
// all.
package storage
