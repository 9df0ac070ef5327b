package ports

import (
	"context"

	"github.com/channeltrace/cct/pkg/layout"
)

// Applier pushes a record into the layout database, creating the named
// excitation/termination terminals. Implementations live in pkg/engine.
type Applier interface {
	// ApplyPorts mutates the layout database and returns the path of the
	// port-annotated copy it saved.
	ApplyPorts(ctx context.Context, design *layout.Design, rec *Record) (string, error)
}

// Apply verifies the record still matches the design (the design may have
// been re-imported between steps) and then drives the layout tool. The
// returned path is the port-annotated layout copy; it is also recorded on
// the design handle.
func Apply(ctx context.Context, tool Applier, design *layout.Design, rec *Record) (string, error) {
	if err := rec.Validate(design); err != nil {
		return "", err
	}
	applied, err := tool.ApplyPorts(ctx, design, rec)
	if err != nil {
		return "", err
	}
	design.AppliedPath = applied
	return applied, nil
}

// Validate cross-checks every referenced component and net against the
// design; a mismatch means the record is stale.
func (r *Record) Validate(design *layout.Design) error {
	if design == nil {
		return Validationf("no design imported")
	}
	if len(r.Ports) == 0 {
		return Validationf("record lists no ports")
	}
	if !design.HasNet(r.ReferenceNet) {
		return Validationf("reference net %s no longer present in design", r.ReferenceNet)
	}
	for _, p := range r.Ports {
		c, ok := design.Component(p.Component)
		if !ok {
			return Validationf("port %s: component %s no longer present in design", p.Name, p.Component)
		}
		if !c.HasNet(p.Net) {
			return Validationf("port %s: component %s has no pin on net %s", p.Name, p.Component, p.Net)
		}
	}
	return nil
}
