package config

import (
	"os"

	"github.com/anyproto/any-sync/app"
	"gopkg.in/yaml.v3"

	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/featured"
	"github.com/SukhnandanMalhotra/addons-server/gateway/gatewayconfig"
	"github.com/SukhnandanMalhotra/addons-server/inspector"
	"github.com/SukhnandanMalhotra/addons-server/redisprovider"
	"github.com/SukhnandanMalhotra/addons-server/store"
	"github.com/SukhnandanMalhotra/addons-server/uploads"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Config struct {
	Mongo     db.Mongo             `yaml:"mongo"`
	Redis     redisprovider.Config `yaml:"redis"`
	S3Store   store.Config         `yaml:"s3Store"`
	Uploads   uploads.Config       `yaml:"uploads"`
	Inspector inspector.Config     `yaml:"inspector"`
	Featured  featured.Config      `yaml:"featured"`
	Gateway   gatewayconfig.Config `yaml:"gateway"`
}

func (c *Config) Init(a *app.App) (err error) {
	return nil
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) GetMongo() db.Mongo {
	return c.Mongo
}

func (c *Config) GetRedis() redisprovider.Config {
	return c.Redis
}

func (c *Config) GetS3Store() store.Config {
	return c.S3Store
}

func (c *Config) GetUploads() uploads.Config {
	return c.Uploads
}

func (c *Config) GetInspector() inspector.Config {
	return c.Inspector
}

func (c *Config) GetFeatured() featured.Config {
	return c.Featured
}

func (c *Config) GetGateway() gatewayconfig.Config {
	return c.Gateway
}
