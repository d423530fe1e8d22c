package cmd

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// End-to-end runs log every round and every network training step;
	// set DEBUG_TESTS=1 to see them.
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
	os.Exit(m.Run())
}
