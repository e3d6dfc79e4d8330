package webapprepo

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
)

const CName = "webapps.repo"

// ErrSlugTaken reports a slug uniqueness violation on insert.
var ErrSlugTaken = errors.New("slug already taken")

func New() WebappRepo {
	return new(webappRepo)
}

type WebappRepo interface {
	// Create inserts the webapp; accepts a transaction context so the
	// insert can share a transaction with the upload consumed flip.
	Create(ctx context.Context, webapp domain.Webapp) error
	Get(ctx context.Context, id string) (domain.Webapp, error)
	GetBySlug(ctx context.Context, slug string) (domain.Webapp, error)
	GetByIds(ctx context.Context, ids []string) ([]domain.Webapp, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Webapp, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// UpdateMetadata writes the metadata guarded by the version counter;
	// a lost race returns apierrors.ErrConflict.
	UpdateMetadata(ctx context.Context, id string, version int64, meta domain.Metadata) (domain.Webapp, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (domain.Webapp, error)
	SetDisabled(ctx context.Context, id string, disabled bool, status domain.Status) (domain.Webapp, error)
	app.ComponentRunnable
}

var webappIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	},
	{
		Keys: bson.D{{Key: "owners", Value: 1}},
	},
	{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "disabledByUser", Value: 1}},
	},
}

type webappRepo struct {
	db   db.Database
	coll *mongo.Collection
}

func (r *webappRepo) Name() (name string) {
	return CName
}

func (r *webappRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.coll = r.db.Db().Collection("webapps")
	return
}

func (r *webappRepo) Run(ctx context.Context) (err error) {
	existingIndexes, err := r.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = r.coll.Indexes().CreateMany(ctx, webappIndexes)
	}
	return
}

func (r *webappRepo) Create(ctx context.Context, webapp domain.Webapp) error {
	if _, err := r.coll.InsertOne(ctx, webapp); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (r *webappRepo) Get(ctx context.Context, id string) (webapp domain.Webapp, err error) {
	return r.getByQuery(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *webappRepo) GetBySlug(ctx context.Context, slug string) (webapp domain.Webapp, err error) {
	return r.getByQuery(ctx, bson.D{{Key: "slug", Value: slug}})
}

func (r *webappRepo) getByQuery(ctx context.Context, query any) (webapp domain.Webapp, err error) {
	if err = r.coll.FindOne(ctx, query).Decode(&webapp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Webapp{}, apierrors.ErrNotFound
		}
		return
	}
	return
}

func (r *webappRepo) GetByIds(ctx context.Context, ids []string) (webapps []domain.Webapp, err error) {
	if len(ids) == 0 {
		return
	}
	cur, err := r.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return
	}
	return decodeAll(ctx, cur)
}

func (r *webappRepo) ListByOwner(ctx context.Context, owner string) (webapps []domain.Webapp, err error) {
	cur, err := r.coll.Find(ctx, bson.D{{Key: "owners", Value: owner}})
	if err != nil {
		return
	}
	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) (webapps []domain.Webapp, err error) {
	defer func() {
		_ = cur.Close(ctx)
	}()
	for cur.Next(ctx) {
		var webapp domain.Webapp
		if err = cur.Decode(&webapp); err != nil {
			return
		}
		webapps = append(webapps, webapp)
	}
	return
}

func (r *webappRepo) SlugExists(ctx context.Context, slug string) (exists bool, err error) {
	count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "slug", Value: slug}})
	if err != nil {
		return
	}
	return count > 0, nil
}

func (r *webappRepo) UpdateMetadata(ctx context.Context, id string, version int64, meta domain.Metadata) (webapp domain.Webapp, err error) {
	res := r.coll.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "metadata", Value: meta},
				{Key: "updated", Value: time.Now().Unix()},
			}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err = res.Decode(&webapp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// either the id is unknown or the version moved underneath us
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return domain.Webapp{}, getErr
			}
			return domain.Webapp{}, apierrors.ErrConflict
		}
		return
	}
	return
}

func (r *webappRepo) SetStatus(ctx context.Context, id string, status domain.Status) (webapp domain.Webapp, err error) {
	return r.findAndSet(ctx, id, bson.D{{Key: "status", Value: status}})
}

func (r *webappRepo) SetDisabled(ctx context.Context, id string, disabled bool, status domain.Status) (webapp domain.Webapp, err error) {
	return r.findAndSet(ctx, id, bson.D{{Key: "disabledByUser", Value: disabled}, {Key: "status", Value: status}})
}

func (r *webappRepo) findAndSet(ctx context.Context, id string, set bson.D) (webapp domain.Webapp, err error) {
	set = append(set, bson.E{Key: "updated", Value: time.Now().Unix()})
	res := r.coll.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err = res.Decode(&webapp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Webapp{}, apierrors.ErrNotFound
		}
		return
	}
	return
}

func (r *webappRepo) Close(ctx context.Context) (err error) {
	return
}
