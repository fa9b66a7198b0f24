package common

import (
	"github.com/sirupsen/logrus"
)

// EnvironmentHook tags every entry with the deployment channel, e.g.
// "production" or "staging".
type EnvironmentHook struct {
	Channel string
}

func (h *EnvironmentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *EnvironmentHook) Fire(e *logrus.Entry) error {
	e.Data["channel"] = h.Channel
	return nil
}
