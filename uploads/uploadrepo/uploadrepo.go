package uploadrepo

import (
	"context"
	"errors"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
)

const CName = "uploads.repo"

// ErrNotConsumable is returned by MarkConsumed when the guarded update
// matched no document: the upload is missing, not valid, or already
// consumed. Callers re-read the upload to tell these apart.
var ErrNotConsumable = errors.New("upload not consumable")

func New() UploadRepo {
	return new(uploadRepo)
}

type UploadRepo interface {
	Create(ctx context.Context, upload domain.Upload) error
	Get(ctx context.Context, id string) (domain.Upload, error)
	SetReport(ctx context.Context, id string, state domain.UploadState, report domain.ValidationReport) error
	// MarkConsumed flips consumed from false to true iff the upload is in
	// the valid state. It is the single linearization point for concurrent
	// consume calls and accepts a transaction context.
	MarkConsumed(ctx context.Context, id string) error
	ListPendingBefore(ctx context.Context, before int64) ([]string, error)
	app.ComponentRunnable
}

var uploadIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "created", Value: 1},
		},
	},
}

type uploadRepo struct {
	db   db.Database
	coll *mongo.Collection
}

func (r *uploadRepo) Name() (name string) {
	return CName
}

func (r *uploadRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.coll = r.db.Db().Collection("uploads")
	return
}

func (r *uploadRepo) Run(ctx context.Context) (err error) {
	return ensureIndexes(ctx, r.coll, uploadIndexes...)
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, indexes ...mongo.IndexModel) (err error) {
	existingIndexes, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = coll.Indexes().CreateMany(ctx, indexes)
	}
	return
}

func (r *uploadRepo) Create(ctx context.Context, upload domain.Upload) error {
	_, err := r.coll.InsertOne(ctx, upload)
	return err
}

func (r *uploadRepo) Get(ctx context.Context, id string) (upload domain.Upload, err error) {
	if err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&upload); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Upload{}, apierrors.ErrNotFound
		}
		return
	}
	return
}

func (r *uploadRepo) SetReport(ctx context.Context, id string, state domain.UploadState, report domain.ValidationReport) error {
	// The report is written once, on the transition out of pending.
	res, err := r.coll.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "state", Value: domain.UploadStatePending}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "state", Value: state},
			{Key: "report", Value: report},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apierrors.ErrNotFound
	}
	return nil
}

func (r *uploadRepo) MarkConsumed(ctx context.Context, id string) error {
	res := r.coll.FindOneAndUpdate(
		ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "state", Value: domain.UploadStateValid},
			{Key: "consumed", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "consumed", Value: true}}}},
	)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotConsumable
		}
		return err
	}
	return nil
}

func (r *uploadRepo) ListPendingBefore(ctx context.Context, before int64) (ids []string, err error) {
	cur, err := r.coll.Find(ctx, bson.D{
		{Key: "state", Value: domain.UploadStatePending},
		{Key: "created", Value: bson.D{{Key: "$lt", Value: before}}},
	})
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var doc = struct {
		Id string `bson:"_id"`
	}{}
	for cur.Next(ctx) {
		if err = cur.Decode(&doc); err != nil {
			return
		}
		ids = append(ids, doc.Id)
	}
	return
}

func (r *uploadRepo) Close(ctx context.Context) (err error) {
	return
}
