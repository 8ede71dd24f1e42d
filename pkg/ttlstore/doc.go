// Package ttlstore provides short-lived key/value storage with single-use reads.
//
// It backs data that only lives for the duration of a sign-in round trip: pending
// authorization requests and the set of authorization codes already presented.
// Two implementations share the Store interface:
//
//   - Memory, an in-process store built on github.com/patrickmn/go-cache with a
//     janitor that sweeps expired entries in the background.
//   - Redis, a shared store for multi-instance deployments. Expiry is native and
//     Consume runs as a single Lua script.
//
// # Single-use reads
//
// Consume returns a value and removes it in one atomic step. It leaves a
// tombstone behind so a second Consume of the same key reports ErrConsumed
// rather than ErrNotFound. Callers use that distinction to tell a replayed
// request apart from one that was never issued or has already expired.
//
//	store := ttlstore.NewMemory(ttlstore.WithTombstoneTTL(10 * time.Minute))
//	defer store.Close()
//
//	_ = store.Put(ctx, "state:abc", payload, 5*time.Minute)
//	v, err := store.Consume(ctx, "state:abc") // payload, nil
//	_, err = store.Consume(ctx, "state:abc")  // ErrConsumed
//
// PutIfAbsent is a set-if-absent primitive for one-shot markers:
//
//	ok, err := store.PutIfAbsent(ctx, "code:google:xyz", nil, 10*time.Minute)
//	if !ok {
//		// already recorded
//	}
package ttlstore
