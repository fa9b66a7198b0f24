package prometheus

import (
	"regexp"
	"strings"
	"time"
)

type ObserveFunc func() time.Duration

var paramRegexp = regexp.MustCompile(":(.*)")

// pathLabel replaces route parameters so that paths of the same route share
// one label value.
func pathLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = paramRegexp.ReplaceAllString(segment, "-")
	}
	return strings.Join(segments, "/")
}
