package resources

import (
	"testing"

	"github.com/netprobe/convtrace/config"
	"github.com/netprobe/convtrace/notify"
)

//InitTestResources creates a default testing resource bundle backed by the
//hard coded testing config.
func InitTestResources(t *testing.T) *Resources {
	conf, err := config.LoadTestingConfig()
	if err != nil {
		t.Fatal(err)
	}

	logger := initLogger(&conf.S.Log)

	return &Resources{
		Config: conf,
		Log:    logger,
		Notify: notify.NewNotifier(&conf.S.Notify, logger),
	}
}
