package testlog

import (
	"testing"

	"github.com/danmuck/feedctl/internal/logging"
	"github.com/danmuck/feedctl/internal/logs"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}
