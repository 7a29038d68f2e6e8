// Package agentlens forwards an agent runtime's event stream to the
// visualization server as session, tool, prompt and notification events.
//
// Plugin-style registration on a subscribable host:
//
//	teardown, err := agentlens.Register(host,
//	    agentlens.WithEnabled(true),
//	    agentlens.WithEventsFile("/tmp/agent-events.ndjson"),
//	)
//	defer teardown()
//
// One event at a time from a call site:
//
//	err := agentlens.Emit(ctx, agentlens.SourceEvent{
//	    Stream: agentlens.StreamLifecycle,
//	    Phase:  "start",
//	    RunID:  runID,
//	}, agentlens.WithEnabled(true))
//
// Delivery is best-effort. Network and file failures are logged at debug
// level and never returned; only configuration errors and malformed events
// reach the caller.
package agentlens
