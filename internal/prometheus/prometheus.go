// Package prometheus holds the metrics exported by osbuild-bootdisk. All
// collectors are registered with the default registry.
package prometheus

const (
	Namespace = "bootdisk"

	APISubsystem   = "api"
	ImageSubsystem = "image"
	TokenSubsystem = "token"
)
