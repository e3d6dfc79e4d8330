package db

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const CName = "db"

var log = logger.NewNamed(CName)

type Mongo struct {
	Connect  string `yaml:"connect"`
	Database string `yaml:"database"`
}

type configGetter interface {
	GetMongo() Mongo
}

func New() Database {
	return new(database)
}

type Database interface {
	Db() *mongo.Database
	Tx(ctx context.Context, f func(txCtx mongo.SessionContext) error) error
	app.ComponentRunnable
}

type database struct {
	conf   Mongo
	client *mongo.Client
	db     *mongo.Database
}

func (d *database) Name() (name string) {
	return CName
}

func (d *database) Init(a *app.App) (err error) {
	d.conf = a.MustComponent("config").(configGetter).GetMongo()
	if d.client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(d.conf.Connect)); err != nil {
		return
	}
	d.db = d.client.Database(d.conf.Database)
	return
}

func (d *database) Run(ctx context.Context) (err error) {
	if err = d.client.Ping(ctx, nil); err != nil {
		return
	}
	log.Info("mongo connected", zap.String("database", d.conf.Database))
	return
}

func (d *database) Db() *mongo.Database {
	return d.db
}

func (d *database) Tx(ctx context.Context, f func(txCtx mongo.SessionContext) error) error {
	return d.client.UseSession(ctx, func(sessCtx mongo.SessionContext) error {
		_, err := sessCtx.WithTransaction(sessCtx, func(txCtx mongo.SessionContext) (any, error) {
			return nil, f(txCtx)
		})
		return err
	})
}

func (d *database) Close(ctx context.Context) (err error) {
	return d.client.Disconnect(ctx)
}
