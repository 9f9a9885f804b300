// Package timeouts defines shared timeout constants used across the season
// daemon and its operator tooling.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the control plane.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single control-plane request issued by seasonctl.
const GRPCRequest = 5 * time.Second

// ReadHeader limits how long the HTTP API waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// StoreStep bounds one persistence round-trip issued by an orchestrator step.
const StoreStep = 10 * time.Second
