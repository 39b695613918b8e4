// Package signal tells an external control plane whether to invoke the
// driver again. After each successful invocation the driver issues exactly
// one instruction: continue while items remain, halt once the batch is
// complete. Interrupted invocations issue none.
//
// HTTPSignal speaks the continuation protocol (POST {base}/continue and
// POST {base}/halt) with a short per-call timeout and no retries; the
// driver treats a failed call as a warning. LocalSignal feeds the in-process
// loop used by `batchcursor run`.
package signal
