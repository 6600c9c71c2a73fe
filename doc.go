// Package secrets implements a small shared-secrets web application: users
// register or log in (local password, Google or Facebook), and once
// authenticated may post a single free-text secret that is listed publicly
// without revealing who wrote it.
//
// # Architecture
//
// Identity: one registered user. An identity is reachable through at least one
// login path: a local username with a bcrypt password hash, a Google subject
// id, or a Facebook subject id. The id is assigned by the IdentityStore and
// never changes.
//
// Session: an scs session referenced by a cookie. A session without a bound
// SessionUser is anonymous. Logging in (by any strategy) renews the session
// token and binds a SessionUser; logging out destroys the session.
//
// Auth Gate: Middleware.EnsureUser guards the protected routes and redirects
// anonymous requests to the login page before any side effect happens.
//
// # Basic Usage
//
//	store := fs.NewFSIdentityStore("/path/to/data")
//	app, err := secrets.NewApp(secrets.AppConfig{
//	    Store:         store,
//	    SessionSecret: os.Getenv("SECRET"),
//	    Providers: []secrets.OAuthProvider{
//	        oauth2.NewGoogleOAuth2(clientId, clientSecret, baseURL+"/auth/google/secrets"),
//	    },
//	})
//	http.ListenAndServe(":3000", app.Handler())
//
// # Login pipelines
//
// Every login strategy is a linear pipeline that returns an AuthResult:
// the local verifier (NewCredentialsVerifier), the registrar
// (NewRegisterFunc) and the federated resolver (NewFederatedResolver). The
// route layer consumes the result, binding the session on success and
// redirecting with a generic message on failure. Callers never learn whether
// a username exists.
//
// # Store Implementations
//
// The stores package tree provides IdentityStore backends: stores/fs (JSON
// files, for development and tests), stores/mongo (MongoDB), stores/gorm (any
// GORM dialect) and stores/gae (Cloud Datastore). Every backend implements
// FindOrCreateFederated atomically so concurrent first logins with the same
// provider id resolve to one identity.
//
// # Testing
//
// Handlers are tested with httptest against the fs store in a temporary
// directory, with a mock OAuth provider standing in for Google and Facebook.
package secrets
