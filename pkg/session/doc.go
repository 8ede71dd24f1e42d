// Package session manages browser sessions for the authentication endpoints.
//
// A Manager combines a Store, which persists sessions by token, with a
// Transport, which moves the token between browser and server. TTLStore
// keeps sessions in a ttlstore.Store, so the in-memory and Redis back ends
// of that package both work. CookieTransport carries the token in a signed
// cookie.
//
// Anonymous sessions are created on demand by Ensure and identify the
// browser while a sign-in is in progress. Authenticate issues a fresh token
// bound to a user and drops the old one.
//
//	kv := ttlstore.NewMemory(ttlstore.WithPrefix("web:"))
//	store, _ := session.NewTTLStore(kv)
//	mgr, _ := session.New(store, session.NewCookieTransport(cookies, "sid"))
//
//	r.Use(mgr.Middleware)
//	r.With(mgr.RequireAuth).Get("/me", me)
package session
