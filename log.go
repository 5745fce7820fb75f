package divert

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used for session lifecycle messages. A nil
// logger silences the package. Call it before opening any session.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		l = discard
	}
	logger = l
}
