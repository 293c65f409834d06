// Package timebase reconstructs per-stream sample clocks.
//
// The BioHarness samples each waveform at a fixed nominal rate but delivers
// packets in bursts whose host arrival times jitter with the radio link.
// This package converts burst arrival into per-sample timestamps that are
// monotonically non-decreasing, nominally spaced within a burst, and
// re-anchored to the host clock whenever the device sequence counter shows
// that packets were lost. Lost samples are never fabricated.
package timebase
