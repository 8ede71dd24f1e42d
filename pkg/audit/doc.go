// Package audit records security-relevant actions such as account linking,
// unlinking and throttled requests.
//
// A Logger stamps each event with an ID and time, fills user and client
// address from context extractors, applies EventOptions and passes the result
// to a Storage. SlogStorage writes events into the structured log,
// MemoryStorage keeps them for tests, and database-backed storages live with
// the stores that own the schema.
//
//	auditor, _ := audit.NewLogger(audit.NewSlogStorage(log))
//	_ = auditor.Log(ctx, "oauth.account_linked",
//		audit.WithUserID(userID.String()),
//		audit.WithResource("oauth_account", accountID.String()),
//		audit.WithMetadata("provider", "github"),
//	)
package audit
