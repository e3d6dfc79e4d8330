package gatewayconfig

type ConfigGetter interface {
	GetGateway() Config
}

type Config struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"readTimeoutSeconds"`
	WriteTimeoutSeconds int    `yaml:"writeTimeoutSeconds"`
}
