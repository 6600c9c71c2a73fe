package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	secrets "github.com/panyam/secrets"
)

const (
	// CollectionName is where identities are stored
	CollectionName = "users"

	codeNamespaceExists         = 48
	codeDocumentValidationError = 121
)

// IdentityStore implements secrets.IdentityStore on a MongoDB collection.
//
// Uniqueness of usernames and provider ids is enforced by unique sparse
// indexes; federated first logins use an upsert so concurrent callbacks for
// the same subject converge on one document.
type IdentityStore struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
}

// Connect opens a client for uri, checks it is reachable and prepares the
// collection in database
func Connect(ctx context.Context, uri, database string) (*IdentityStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	store := NewIdentityStore(client, database)
	if err := store.Ping(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func NewIdentityStore(client *mongo.Client, database string) *IdentityStore {
	db := client.Database(database)
	return &IdentityStore{client: client, db: db, coll: db.Collection(CollectionName)}
}

// Close disconnects the underlying client
func (s *IdentityStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureSchema creates the collection with its validator and indexes. Safe
// to call on every start.
func (s *IdentityStore) EnsureSchema(ctx context.Context) error {
	err := s.db.CreateCollection(ctx, CollectionName, options.CreateCollection().SetValidator(identityValidator))
	if err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || !cmdErr.HasErrorCode(codeNamespaceExists) {
			return fmt.Errorf("create collection: %w", err)
		}
		// existing deployments get the validator too
		cmd := bson.D{{Key: "collMod", Value: CollectionName}, {Key: "validator", Value: identityValidator}}
		if err := s.db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("update validator: %w", err)
		}
	}

	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		}
	}
	_, err = s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("username"),
		unique("googleId"),
		unique("facebookId"),
		{Keys: bson.D{{Key: "secret", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func providerField(provider secrets.Provider) (string, error) {
	switch provider {
	case secrets.ProviderGoogle:
		return "googleId", nil
	case secrets.ProviderFacebook:
		return "facebookId", nil
	}
	return "", fmt.Errorf("unknown provider: %q", provider)
}

// writeError maps server side rejections to store sentinels
func writeError(op string, err error) error {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(codeDocumentValidationError) {
		return secrets.ErrIncompleteIdentity
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *IdentityStore) findOne(ctx context.Context, filter bson.D) (*secrets.Identity, error) {
	var doc identityDocument
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, secrets.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return doc.toIdentity(), nil
}

func (s *IdentityStore) CreateLocalIdentity(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	now := time.Now().UTC()
	doc := identityDocument{
		ID:           bson.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity := doc.toIdentity()
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, secrets.ErrUsernameTaken
		}
		return nil, writeError("insert identity", err)
	}
	return identity, nil
}

func (s *IdentityStore) GetIdentityByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (s *IdentityStore) GetIdentityById(ctx context.Context, id string) (*secrets.Identity, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, secrets.ErrIdentityNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *IdentityStore) FindOrCreateFederated(ctx context.Context, provider secrets.Provider, subject, displayName string) (*secrets.Identity, bool, error) {
	field, err := providerField(provider)
	if err != nil {
		return nil, false, err
	}
	if subject == "" {
		return nil, false, secrets.ErrIncompleteIdentity
	}

	now := time.Now().UTC()
	filter := bson.D{{Key: field, Value: subject}}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: field, Value: subject},
		{Key: "displayName", Value: displayName},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}

	var res *mongo.UpdateResult
	for attempt := 0; attempt < 2; attempt++ {
		res, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			break
		}
		// a concurrent upsert inserted the same subject first
		slog.Debug("retrying federated upsert", "provider", provider)
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			identity, ferr := s.findOne(ctx, filter)
			return identity, false, ferr
		}
		return nil, false, writeError("upsert identity", err)
	}

	identity, err := s.findOne(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return identity, res.UpsertedCount == 1, nil
}

func (s *IdentityStore) SetSecret(ctx context.Context, id, secret string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return secrets.ErrIdentityNotFound
	}
	res, err := s.coll.UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: bson.D{
		{Key: "secret", Value: secret},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return writeError("update secret", err)
	}
	if res.MatchedCount == 0 {
		return secrets.ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) ListIdentitiesWithSecret(ctx context.Context) ([]*secrets.Identity, error) {
	filter := bson.D{{Key: "secret", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}}}
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	var docs []identityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read identities: %w", err)
	}

	identities := make([]*secrets.Identity, len(docs))
	for i := range docs {
		identities[i] = docs[i].toIdentity()
	}
	return identities, nil
}

func (s *IdentityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
