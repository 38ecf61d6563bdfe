// logging.go — Logger setup.
// All diagnostics go to stderr; stdout carries only JSON-RPC lines in stdio
// mode, so nothing may ever log there.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func initLogging(debug bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
