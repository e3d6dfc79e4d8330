package uploads

type configGetter interface {
	GetUploads() Config
}

type Config struct {
	// MaxPackageSize is the decoded archive size limit in bytes.
	MaxPackageSize int64 `yaml:"maxPackageSize"`
	// AcceptedType is the single accepted archive content type.
	AcceptedType string `yaml:"acceptedType"`
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queueSize"`
	// RequeueAfterSeconds is the age after which a pending upload is
	// rescheduled for validation (crash recovery).
	RequeueAfterSeconds int64 `yaml:"requeueAfterSeconds"`
}

func (c Config) maxPackageSize() int64 {
	if c.MaxPackageSize <= 0 {
		return 250 * 1024 * 1024
	}
	return c.MaxPackageSize
}

func (c Config) acceptedType() string {
	if c.AcceptedType == "" {
		return "application/zip"
	}
	return c.AcceptedType
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

func (c Config) queueSize() int {
	if c.QueueSize <= 0 {
		return 128
	}
	return c.QueueSize
}

func (c Config) requeueAfter() int64 {
	if c.RequeueAfterSeconds <= 0 {
		return 300
	}
	return c.RequeueAfterSeconds
}
