package redisprovider

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/redis/go-redis/v9"
)

const CName = "redisprovider"

var log = logger.NewNamed(CName)

type Config struct {
	Url string `yaml:"url"`
}

type configGetter interface {
	GetRedis() Config
}

func New() RedisProvider {
	return new(redisProvider)
}

type RedisProvider interface {
	Redis() redis.UniversalClient
	app.ComponentRunnable
}

type redisProvider struct {
	client redis.UniversalClient
}

func (r *redisProvider) Name() (name string) {
	return CName
}

func (r *redisProvider) Init(a *app.App) (err error) {
	conf := a.MustComponent("config").(configGetter).GetRedis()
	opts, err := redis.ParseURL(conf.Url)
	if err != nil {
		return
	}
	r.client = redis.NewClient(opts)
	return
}

func (r *redisProvider) Run(ctx context.Context) (err error) {
	if err = r.client.Ping(ctx).Err(); err != nil {
		return
	}
	log.Info("redis connected")
	return
}

func (r *redisProvider) Redis() redis.UniversalClient {
	return r.client
}

func (r *redisProvider) Close(ctx context.Context) (err error) {
	return r.client.Close()
}
