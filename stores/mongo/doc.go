// Package mongo provides a MongoDB implementation of secrets.IdentityStore.
//
// # Collection Layout
//
// Identities live in a single "users" collection, one document per identity:
//
//	{
//	  _id:          ObjectId,
//	  username:     "alice",          // local login, optional
//	  passwordHash: "$2a$10$...",      // bcrypt, optional
//	  googleId:     "1093...",         // optional
//	  facebookId:   "1020...",         // optional
//	  secret:       "cat",             // optional
//	  displayName:  "Alice",
//	  createdAt, updatedAt
//	}
//
// EnsureSchema installs unique sparse indexes on username, googleId and
// facebookId and a $jsonSchema validator that rejects documents with no
// login path.
//
// # Usage
//
//	store, err := mongostore.Connect(ctx, "mongodb://127.0.0.1:27017", "userDB")
//	defer store.Close(context.Background())
package mongo
