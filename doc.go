// Package siteauth is a sign-in engine for Go web applications: OAuth 1.0a
// and 2.x providers, passwordless email links and credential checks, all
// ending in a server-side session the application can query.
//
// # Architecture
//
// Every request passes through a double-submit CSRF check (CSRFGuard). OAuth
// 2 providers that support it get a state parameter derived from the CSRF
// token, so a callback can only complete in the browser that started it.
//
// Callbacks are exchanged by an Exchanger chosen per provider (OAuth 1.0a,
// OAuth 2 with a profile endpoint, or OAuth 2 with an ID token). The
// resulting Profile and ProviderAccount go to the AccountLinker, which
// decides which User signs in. It never merges two external identities
// because they report the same email; that fails with AccountNotLinked.
//
// Sessions are either signed JWT cookies (SessionModeToken) or random keys
// for records held by the Adapter (SessionModeDatabase). Both slide their
// expiry forward on each read of /session.
//
// # Basic Usage
//
//	adapter := fs.NewFSAdapter("/var/lib/myapp/auth")
//	auth, err := siteauth.New(siteauth.Config{
//	    BaseURL: "https://example.com",
//	    Secret:  os.Getenv("SITEAUTH_SECRET"),
//	    Adapter: adapter,
//	    Mailer:  &siteauth.ConsoleMailer{},
//	    Providers: []siteauth.Provider{
//	        providers.GitHub(siteauth.Provider{ClientID: "...", ClientSecret: "..."}),
//	        providers.Email(siteauth.Provider{}),
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mux := http.NewServeMux()
//	mux.Handle("/api/auth/", auth.Handler())
//	mux.Handle("/account", auth.Middleware().EnsureUser(accountHandler))
//
// # Routes
//
// Under Config.BasePath (default /api/auth):
//
//	GET  /csrf                  {"csrfToken": "..."}
//	GET  /providers             configured providers with their URLs
//	GET  /session               the session view, or {}
//	GET  /signin                sign-in page
//	GET  /signin/{provider}     start an OAuth flow
//	POST /signin/{provider}     start a flow (email: send the link)
//	GET  /callback/{provider}   finish a flow
//	POST /callback/{provider}   finish a form_post or credentials flow
//	GET  /signout               sign-out page
//	POST /signout               end the session
//	GET  /error                 error page for ?error=<code>
//	GET  /verify-request        "check your email" page
//
// # Store Implementations
//
// The stores sub-packages implement Adapter on the filesystem (stores/fs),
// gorm (stores/gorm), Cloud Datastore (stores/gae) and Postgres via sqlx
// (stores/postgres).
package siteauth
