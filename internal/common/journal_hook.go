package common

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// JournalHook forwards entries to the systemd journal. Entry fields become
// journal fields, so `journalctl OPERATIONID=...` finds every line of a
// request.
type JournalHook struct {
	// Identifier is used as SYSLOG_IDENTIFIER when set.
	Identifier string
}

func journalPriority(l logrus.Level) journal.Priority {
	switch l {
	case logrus.PanicLevel:
		return journal.PriEmerg
	case logrus.FatalLevel:
		return journal.PriCrit
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField turns a logrus key into a valid journal field name: upper
// case letters, digits and underscores, not starting with an underscore.
func journalField(key string) string {
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return unicode.ToUpper(r)
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return strings.TrimLeft(key, "_")
}

func stringifyEntries(data logrus.Fields) map[string]string {
	entries := make(map[string]string, len(data))
	for k, v := range data {
		entries[journalField(k)] = fmt.Sprint(v)
	}
	return entries
}

func (hook *JournalHook) Fire(entry *logrus.Entry) error {
	vars := stringifyEntries(entry.Data)
	if hook.Identifier != "" {
		vars["SYSLOG_IDENTIFIER"] = hook.Identifier
	}
	return journal.Send(entry.Message, journalPriority(entry.Level), vars)
}

// Trace is left out, journald would store it as debug anyway.
func (hook *JournalHook) Levels() []logrus.Level {
	return logrus.AllLevels[:logrus.DebugLevel+1]
}
