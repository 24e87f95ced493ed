// Package coordinator is the single entry point for running cacheable
// computations on top of pool, cache and modules.
//
// Run resolves a request in order:
//
//  1. load the module named by WithModule, if any;
//  2. return the cached result for key on a hit;
//  3. on a miss, join an identical in-flight request for key, or submit a
//     new task to the pool;
//  4. on success, cache the result and hand it to every joined caller;
//  5. on failure, hand the error to every joined caller; nothing is cached.
//
// The shared computation runs detached from its callers: cancelling one
// caller's ctx releases only that caller. The pool's task timeout bounds
// the computation itself.
package coordinator
