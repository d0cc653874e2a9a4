package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"

	"github.com/creasty/defaults"
	yaml "gopkg.in/yaml.v2"
)

type (
	//StaticCfg is the container for other static config sections
	StaticCfg struct {
		Log        LogStaticCfg        `yaml:"LogConfig"`
		Prober     ProberStaticCfg     `yaml:"Prober"`
		Window     WindowStaticCfg     `yaml:"Window"`
		Delay      DelayStaticCfg      `yaml:"Delay"`
		Notify     NotifyStaticCfg     `yaml:"Notify"`
		Processing ProcessingStaticCfg `yaml:"Processing"`
		UserConfig UserCfg             `yaml:"UserConfig"`

		Version      string
		ExactVersion string
	}

	//LogStaticCfg contains the configuration for logging
	LogStaticCfg struct {
		LogLevel  int    `yaml:"LogLevel" default:"2"`
		LogPath   string `yaml:"LogPath" default:""`
		LogToFile bool   `yaml:"LogToFile" default:"false"`
	}

	//ProberStaticCfg describes the synthetic probe traffic injected into the
	//testbed: every internal router emits fixed-size frames carrying a
	//big-endian sequence number in the IPv4 payload.
	ProberStaticCfg struct {
		//SourceMAC is the hardware address all probe injections carry
		SourceMAC string `yaml:"SourceMAC" default:"de:ad:be:ef:00:00"`
		//MinPacketSize is the smallest frame length that can be a probe
		MinPacketSize int `yaml:"MinPacketSize" default:"60"`
		//Protocol is the IPv4 protocol number reserved for probe traffic
		Protocol int `yaml:"Protocol" default:"253"`
		//DelayCrossings is the number of observations one probe produces
		//when crossing an artificial-delay link. The loop heuristic's
		//per-router visit baseline is derived from this value.
		DelayCrossings int `yaml:"DelayCrossings" default:"2"`
		//PrefixLength is the prefix length announced for each measurement
		//destination; the capture only carries host addresses
		PrefixLength int `yaml:"PrefixLength" default:"24"`
	}

	//WindowStaticCfg controls the considered window of each capture
	WindowStaticCfg struct {
		//TrimSeconds is cut from each end of a capture to remove the
		//start/stop transients of the measurement harness
		TrimSeconds float64 `yaml:"TrimSeconds" default:"1.0"`
	}

	//DelayStaticCfg holds the tolerance bands used to decide whether the
	//artificial delay emulation of a sample can be trusted. Each band is a
	//factor applied to the median per-link delay.
	DelayStaticCfg struct {
		P1Low   float64 `yaml:"P1Low" default:"0.8"`
		P2Low   float64 `yaml:"P2Low" default:"0.85"`
		P10Low  float64 `yaml:"P10Low" default:"0.9"`
		P90High float64 `yaml:"P90High" default:"1.1"`
		P98High float64 `yaml:"P98High" default:"1.15"`
		P99High float64 `yaml:"P99High" default:"1.2"`
	}

	//NotifyStaticCfg configures the best-effort out-of-band notifications
	//sent when a data-quality condition is detected
	NotifyStaticCfg struct {
		WebhookURL     string `yaml:"WebhookURL" default:""`
		TimeoutSeconds int    `yaml:"TimeoutSeconds" default:"5"`
	}

	//ProcessingStaticCfg controls the batch pipeline
	ProcessingStaticCfg struct {
		//Workers is the number of (topology, scenario) units processed in
		//parallel; 0 selects the number of CPUs
		Workers int `yaml:"Workers" default:"0"`
		//Resumable skips samples whose results are already persisted
		Resumable bool `yaml:"Resumable" default:"true"`
		//MinFreeMemoryMB triggers a warning when the system is likely to
		//swap while decompressing captures
		MinFreeMemoryMB uint64 `yaml:"MinFreeMemoryMB" default:"512"`
	}

	//UserCfg holds user preferences
	UserCfg struct {
		UpdateCheckFrequency *int `yaml:"UpdateCheckFrequency"`
	}
)

// loadStaticConfig attempts to parse a config file; an empty path yields the
// compiled-in defaults
func loadStaticConfig(cfgPath string) (*StaticCfg, error) {
	var config = new(StaticCfg)

	if err := defaults.Set(config); err != nil {
		return config, err
	}

	if cfgPath != "" {
		_, err := os.Stat(cfgPath)
		if os.IsNotExist(err) {
			return config, err
		}

		cfgFile, err := ioutil.ReadFile(cfgPath)
		if err != nil {
			return config, err
		}

		if err := parseStaticConfig(cfgFile, config); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read config: %s\n", err.Error())
			return config, err
		}
	}

	// grab the version constants set by the build process
	config.Version = Version
	config.ExactVersion = ExactVersion

	return config, nil
}

// parseStaticConfig loads the yaml from cfgFile into the provided config struct
func parseStaticConfig(cfgFile []byte, config *StaticCfg) error {
	err := yaml.Unmarshal(cfgFile, config)
	if err != nil {
		return err
	}

	// expand env variables, config is a pointer
	// so we have to call elem on the reflect value
	expandConfig(reflect.ValueOf(config).Elem())

	return nil
}
