package resources

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/netprobe/convtrace/config"
	"github.com/netprobe/convtrace/notify"
)

type (
	// Resources provides a data structure for passing system Resources
	Resources struct {
		Config *config.Config
		Log    *log.Logger
		Notify *notify.Notifier
	}
)

// InitResources grabs the configuration file and intitializes the configuration data
// returning a *Resources object which has all of the necessary configuration information
func InitResources(userConfig string) *Resources {
	conf, err := config.LoadConfig(userConfig)
	if err != nil {
		fmt.Fprintf(os.Stdout, "Failed to config: %s\n", err.Error())
		os.Exit(-1)
	}

	// Fire up the logging system
	logger := initLogger(&conf.S.Log)
	if conf.S.Log.LogToFile && conf.S.Log.LogPath != "" {
		if err := addFileLogger(logger, conf.S.Log.LogPath); err != nil {
			fmt.Fprintf(os.Stdout, "Failed to open log files: %s\n", err.Error())
			os.Exit(-1)
		}
	}

	//bundle up the system resources
	r := &Resources{
		Config: conf,
		Log:    logger,
		Notify: notify.NewNotifier(&conf.S.Notify, logger),
	}
	return r
}
