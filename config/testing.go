package config

import (
	"github.com/creasty/defaults"
)

const testConfig = `
LogConfig:
    LogLevel: 3
    LogPath: null
    LogToFile: false
Prober:
    SourceMAC: de:ad:be:ef:00:00
    MinPacketSize: 60
    Protocol: 253
    DelayCrossings: 2
    PrefixLength: 24
Window:
    TrimSeconds: 1.0
Notify:
    WebhookURL: null
Processing:
    Workers: 1
    Resumable: true
`

// LoadTestingConfig loads the hard coded testing config
func LoadTestingConfig() (*Config, error) {
	config := &Config{}

	// Initialize static config to the default values
	if err := defaults.Set(&config.S); err != nil {
		return nil, err
	}

	// Deserialize the yaml file contents into the static config
	if err := parseStaticConfig([]byte(testConfig), &config.S); err != nil {
		return nil, err
	}

	config.S.Version = "v0.0.0+testing"
	config.S.ExactVersion = "v0.0.0+testing"

	return config, nil
}
