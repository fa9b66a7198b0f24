package common

import (
	"github.com/sirupsen/logrus"
)

// BuildHook adds the build identification to every entry so that reports can
// be matched to a release.
type BuildHook struct {
}

func (h *BuildHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *BuildHook) Fire(e *logrus.Entry) error {
	e.Data["build_commit"] = BuildCommit
	e.Data["build_time"] = BuildTime

	return nil
}
