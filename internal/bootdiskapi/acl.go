package bootdiskapi

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
)

// Anonymous is the identity of clients without a TLS client certificate.
const Anonymous = "anonymous"

// Authorizer decides whether the client behind c may perform action on
// target. target is the host id for host scoped actions and empty otherwise.
type Authorizer interface {
	Allowed(action, target string, c echo.Context) bool
}

// DownloadAction names the permission needed to download images of kind k.
func DownloadAction(k ipxe.Kind) string {
	return "download_" + k.String()
}

// ACL matches the client identity against glob patterns per action. Actions
// without rules are allowed for everyone.
type ACL struct {
	rules map[string][]glob.Glob
}

func NewACL(rules map[string][]string) (*ACL, error) {
	acl := &ACL{rules: make(map[string][]glob.Glob, len(rules))}
	for action, patterns := range rules {
		globs := make([]glob.Glob, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for action %s: %v", p, action, err)
			}
			globs = append(globs, g)
		}
		acl.rules[action] = globs
	}
	return acl, nil
}

func (a *ACL) Allowed(action, target string, c echo.Context) bool {
	globs, ok := a.rules[action]
	if !ok {
		return true
	}
	id := Identity(c)
	for _, g := range globs {
		if g.Match(id) {
			return true
		}
	}
	logrus.WithContext(c.Request().Context()).WithFields(logrus.Fields{
		"action":   action,
		"target":   target,
		"identity": id,
	}).Warn("Request denied")
	return false
}

// Identity returns the common name of the verified client certificate, or
// Anonymous.
func Identity(c echo.Context) string {
	state := c.Request().TLS
	if state == nil || len(state.PeerCertificates) == 0 {
		return Anonymous
	}
	if cn := state.PeerCertificates[0].Subject.CommonName; cn != "" {
		return cn
	}
	return Anonymous
}
