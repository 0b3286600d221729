package handler

import "fmt"

// CapabilityError reports a handler that cannot do what it was asked to, or
// that advertises a capability it does not implement.
type CapabilityError struct {
	Handler    string
	Capability string
	FileName   string
}

func (e *CapabilityError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("handler %s has no %s implementation (file %s)", e.Handler, e.Capability, e.FileName)
	}
	return fmt.Sprintf("handler %s has no %s implementation", e.Handler, e.Capability)
}
