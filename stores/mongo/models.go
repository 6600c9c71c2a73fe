package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	secrets "github.com/panyam/secrets"
)

// identityDocument is the stored form of a secrets.Identity
type identityDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Username     string        `bson:"username,omitempty"`
	PasswordHash string        `bson:"passwordHash,omitempty"`
	GoogleID     string        `bson:"googleId,omitempty"`
	FacebookID   string        `bson:"facebookId,omitempty"`
	Secret       string        `bson:"secret,omitempty"`
	DisplayName  string        `bson:"displayName,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

func (d *identityDocument) toIdentity() *secrets.Identity {
	return &secrets.Identity{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		GoogleID:     d.GoogleID,
		FacebookID:   d.FacebookID,
		Secret:       d.Secret,
		DisplayName:  d.DisplayName,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// identityValidator mirrors Identity.Validate on the server
var identityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"anyOf": bson.A{
			bson.M{"required": bson.A{"username", "passwordHash"}},
			bson.M{"required": bson.A{"googleId"}},
			bson.M{"required": bson.A{"facebookId"}},
		},
	},
}
