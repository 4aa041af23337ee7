package transfer

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// unknownTotalStep is how often progress is logged when the size is unknown.
const unknownTotalStep = 64 << 20

// LogProgress returns a ProgressFunc that logs every 10% of a download, or
// every 64 MiB when the total size is unknown.
func LogProgress(logger logrus.FieldLogger, label string) ProgressFunc {
	var next int64
	return func(received, total int64) {
		if total <= 0 {
			if received >= next {
				logger.WithField("file", label).Infof("downloaded %s", humanize.IBytes(uint64(received)))
				next = received + unknownTotalStep
			}
			return
		}

		step := total / 10
		if step == 0 {
			step = total
		}
		if received >= next || received >= total {
			logger.WithField("file", label).Infof("downloaded %6.1f%% of %s",
				float64(received)/float64(total)*100, humanize.IBytes(uint64(total)))
			next = (received/step + 1) * step
		}
	}
}

// leveledLogger routes retryablehttp's log output through logrus.
type leveledLogger struct {
	logger logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Error(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Warn(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Debug(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
