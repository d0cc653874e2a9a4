package config

import (
	"os"
	"os/user"
	"reflect"
)

//Version is filled at compile time with the git version of convtrace
var Version = "undefined"

//ExactVersion is filled at compile time with the exact git version of convtrace
var ExactVersion = "undefined"

type (
	//Config holds the configuration for the running system
	Config struct {
		S StaticCfg
	}
)

// LoadConfig retrieves a configuration in order of precedence
func LoadConfig(cfgPath string) (*Config, error) {
	if cfgPath != "" {
		return loadSystemConfig(cfgPath)
	}

	// Get the user's homedir
	user, err := user.Current()
	if err == nil {
		homeConf := user.HomeDir + "/.convtrace/config.yaml"
		if _, err := os.Stat(homeConf); err == nil {
			return loadSystemConfig(homeConf)
		}
	}

	if _, err := os.Stat("/etc/convtrace/config.yaml"); err == nil {
		return loadSystemConfig("/etc/convtrace/config.yaml")
	}

	// no config file found, run with the compiled-in defaults
	return loadSystemConfig("")
}

// loadSystemConfig attempts to parse a config file
func loadSystemConfig(cfgPath string) (*Config, error) {
	var config = new(Config)

	static, err := loadStaticConfig(cfgPath)
	if err != nil {
		return config, err
	}
	config.S = *static

	return config, nil
}

// expandConfig expands environment variables in config strings
func expandConfig(reflected reflect.Value) {
	for i := 0; i < reflected.NumField(); i++ {
		f := reflected.Field(i)
		// process sub configs
		if f.Kind() == reflect.Struct {
			expandConfig(f)
		} else if f.Kind() == reflect.String {
			f.SetString(os.ExpandEnv(f.String()))
		} else if f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String {
			strs := f.Interface().([]string)
			for i, str := range strs {
				strs[i] = os.ExpandEnv(str)
			}
			f.Set(reflect.ValueOf(strs))
		}
	}
}
