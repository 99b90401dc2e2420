package s3

// Config represents the S3 connection settings
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	MaxRetries int `yaml:"max_retries"`
}

// NewDefaultConfig returns the connection defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// staticCredentials reports whether explicit keys replace the default chain.
func (c *Config) staticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}
