package ipxe

import (
	"errors"
	"fmt"
)

var (
	ErrTemplate = errors.New("template error")
	ErrRender   = errors.New("render error")
)

// TemplateError is returned when no usable template exists for a kind.
type TemplateError struct {
	Kind Kind
	Err  error
}

func (e *TemplateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no template registered for %s boot disks", e.Kind)
	}
	return fmt.Sprintf("%s template: %v", e.Kind, e.Err)
}

func (e *TemplateError) Is(target error) bool {
	return target == ErrTemplate
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// RenderError is returned when the data a script needs is missing from the
// context, e.g. a host without provisioning server.
type RenderError struct {
	Kind   Kind
	HostID string
	Reason string
}

func (e *RenderError) Error() string {
	if e.HostID == "" {
		return fmt.Sprintf("cannot render %s script: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("cannot render %s script for host %s: %s", e.Kind, e.HostID, e.Reason)
}

func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}
