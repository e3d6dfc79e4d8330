package featuredrepo

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
)

const CName = "featured.repo"

func New() FeaturedRepo {
	return new(featuredRepo)
}

// FeaturedRepo reads the curation records. Placements are written by an
// external curation process; Create exists for that process and for
// fixtures.
type FeaturedRepo interface {
	Create(ctx context.Context, placement domain.FeaturedPlacement) (domain.FeaturedPlacement, error)
	// ListByRegion returns placements whose regions contain region,
	// scoped to category ("" selects only category-unconstrained
	// placements), in creation order.
	ListByRegion(ctx context.Context, region, category string) ([]domain.FeaturedPlacement, error)
	app.ComponentRunnable
}

var placementIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{
			{Key: "regions", Value: 1},
			{Key: "category", Value: 1},
		},
	},
}

type featuredRepo struct {
	db   db.Database
	coll *mongo.Collection
}

func (r *featuredRepo) Name() (name string) {
	return CName
}

func (r *featuredRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.coll = r.db.Db().Collection("featured")
	return
}

func (r *featuredRepo) Run(ctx context.Context) (err error) {
	existingIndexes, err := r.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = r.coll.Indexes().CreateMany(ctx, placementIndexes)
	}
	return
}

func (r *featuredRepo) Create(ctx context.Context, placement domain.FeaturedPlacement) (domain.FeaturedPlacement, error) {
	if placement.Id.IsZero() {
		placement.Id = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, placement); err != nil {
		return domain.FeaturedPlacement{}, err
	}
	return placement, nil
}

func (r *featuredRepo) ListByRegion(ctx context.Context, region, category string) (placements []domain.FeaturedPlacement, err error) {
	query := bson.D{{Key: "regions", Value: region}}
	if category != "" {
		query = append(query, bson.E{Key: "category", Value: category})
	} else {
		query = append(query, bson.E{Key: "category", Value: bson.D{{Key: "$exists", Value: false}}})
	}
	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}, {Key: "appId", Value: 1}}))
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	for cur.Next(ctx) {
		var placement domain.FeaturedPlacement
		if err = cur.Decode(&placement); err != nil {
			return
		}
		placements = append(placements, placement)
	}
	return
}

func (r *featuredRepo) Close(ctx context.Context) (err error) {
	return
}
