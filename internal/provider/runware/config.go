package runware

// Config contains Runware provider configuration.
type Config struct {
	APIKey  string `env:"RUNWARE_API_KEY"`
	BaseURL string `env:"RUNWARE_BASE_URL" envDefault:"https://api.runware.ai/v1"`
	Timeout int    `env:"RUNWARE_TIMEOUT"  envDefault:"60"`
}
