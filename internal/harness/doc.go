// Package harness runs YAML fiber scenarios and records their traces.
//
// A scenario is a list of steps, each a create, transition or archive
// against a fiber alias, with optional expectations:
//
//	steps:
//	  - create: {as: door, definition: door}
//	    expect_state: closed
//	  - transition: {fiber: door, event: open, payload: {who: alice}}
//	    expect_state: opened
//	    expect_seq: 1
//	  - transition: {fiber: door, event: open, target_seq: 0}
//	    expect_rejection: SequenceNumberMismatch
//
// The Runner drives a fiber.Client, so the same scenario runs against the
// in-memory testutil.FakeLedger (RunFake, RunWithGolden) or a live
// deployment (fiberctl scenario run). Traces name fibers by alias, which
// keeps golden files independent of generated IDs.
//
// Expectations that do not hold are collected in Result.Errors rather than
// aborting the run, so one golden file shows every divergence.
package harness
