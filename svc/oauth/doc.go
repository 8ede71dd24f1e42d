// Package oauth implements third-party sign-in with the OAuth2
// authorization code flow and PKCE.
//
// The Service starts flows (Initiate), completes them (HandleCallback),
// and manages linked accounts (Accounts, Unlink). It works with:
//
//   - a Registry of Provider adapters for Google, GitHub, Microsoft,
//     Facebook and generic OAuth2/OIDC providers;
//   - a ttlstore.Store holding authorization requests and used codes;
//   - a Store persisting accounts and tokens (see memstore and pgstore);
//   - a Resolver deciding which internal user an identity belongs to;
//   - a Vault encrypting tokens at rest and refreshing them;
//   - Limits throttling initiations, callbacks and link operations.
//
// Basic wiring:
//
//	registry, _ := oauth.BuildRegistry(providerConfigs)
//	vault, _ := oauth.NewVault(cipher, store, registry)
//	resolver, _ := oauth.NewResolver(store, users)
//	svc, _ := oauth.NewService(registry, requests, store, vault, resolver, users, sessions,
//		oauth.WithLogger(log),
//		oauth.WithLimits(limits),
//	)
//
// Callback failures are returned as *FlowError. Only FlowError.Reason is
// meant for end users.
package oauth
