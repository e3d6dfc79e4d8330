// Package accounts is the identity/terms collaborator: it answers whether
// an identity has accepted the platform usage terms before being allowed
// to turn submissions into catalog entries.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SukhnandanMalhotra/addons-server/db"
)

const CName = "accounts"

func New() Service {
	return new(service)
}

type Account struct {
	Identity      string `bson:"_id"`
	TermsAccepted bool   `bson:"termsAccepted"`
	Created       int64  `bson:"created"`
}

type Service interface {
	HasAcceptedTerms(ctx context.Context, identity string) (bool, error)
	AcceptTerms(ctx context.Context, identity string) error
	app.ComponentRunnable
}

type service struct {
	coll *mongo.Collection
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.coll = a.MustComponent(db.CName).(db.Database).Db().Collection("accounts")
	return
}

func (s *service) Run(ctx context.Context) (err error) {
	return
}

func (s *service) HasAcceptedTerms(ctx context.Context, identity string) (accepted bool, err error) {
	var acc Account
	if err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: identity}}).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return
	}
	return acc.TermsAccepted, nil
}

func (s *service) AcceptTerms(ctx context.Context, identity string) (err error) {
	_, err = s.coll.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: identity}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "termsAccepted", Value: true}}},
			{Key: "$setOnInsert", Value: bson.D{{Key: "created", Value: time.Now().Unix()}}},
		},
		options.Update().SetUpsert(true),
	)
	return
}

func (s *service) Close(ctx context.Context) (err error) {
	return
}
