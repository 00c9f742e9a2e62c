package audit

type Config struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Store   StoreConfig `yaml:"store" json:"store"`
}

type StoreConfig struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Store: StoreConfig{
			BatchSize: 100,
			Prefix:    "audit-logs/",
		},
	}
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Prefix == "" {
		c.Prefix = "audit-logs/"
	}
	return c
}
