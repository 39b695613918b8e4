// Package scheduler drives the iteration driver repeatedly.
//
// Loop is the explicit, in-process form used by the `run` command: it invokes
// the driver, reads the continuation instruction from a signal.LocalSignal,
// and either paces the next invocation with a rate limiter or stops. Jobs is
// the daemon's built-in control plane: it implements signal.Signal so the
// driver's continue and halt instructions (delivered in process or through
// POST /continue and /halt) re-trigger or finish the job they name.
package scheduler
