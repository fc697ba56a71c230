// Package worker implements the registration and dispatch framework
// for discovery actions. Workers register against an (action, phase)
// pair with an optional driver tag and device ACLs; the dispatcher
// runs the phases of an action in the order they were first installed,
// reducing the process-wide credential list to the stanzas each worker
// may use and restoring it afterwards on every exit path.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
)

// Phase is an ordered step within an action.
type Phase string

const (
	PhaseInit  Phase = "init"
	PhaseEarly Phase = "early"
	PhaseMain  Phase = "main"
	PhaseLate  Phase = "late"
)

func validPhase(p Phase) bool {
	switch p {
	case PhaseInit, PhaseEarly, PhaseMain, PhaseLate:
		return true
	}
	return false
}

// Spec describes a worker registration. Action and Phase are validated
// against their closed sets at registration time rather than inferred
// from the caller.
type Spec struct {
	Action domain.Action
	Phase  Phase  // defaults to PhaseInit when empty
	Driver string // "snmp", "cli"; empty accepts any stanza

	// Only and No restrict which devices this worker runs for, and
	// which credential stanzas it may see.
	Only []string
	No   []string

	// Primary workers decide the phase outcome; secondary workers run
	// after them and cannot fail the phase.
	Primary bool
}

// Runner is a worker callback. It receives the job and the stored
// device for the job's target, or a placeholder device when the target
// is not yet known.
type Runner func(ctx context.Context, job *domain.Job, device *domain.Device) Status

// DeviceLookup resolves a job target to a stored device for ACL
// evaluation.
type DeviceLookup interface {
	GetDevice(ctx context.Context, ip string) (*domain.Device, error)
}

type registration struct {
	name string
	spec Spec
	run  Runner
}

type hookKey struct {
	action  domain.Action
	phase   Phase
	primary bool
}

type phaseRef struct {
	phase   Phase
	primary bool
}

// Registry holds every worker registration and dispatches jobs. One
// registry exists per process: it is populated during startup and
// read-only afterwards.
type Registry struct {
	cfg     *config.Config
	devices DeviceLookup

	hooks map[hookKey][]registration

	// phaseOrder records, per action, the order in which each
	// (phase, primary) hook was first installed. Append-only.
	phaseOrder map[domain.Action][]phaseRef

	// credMu serializes access to the process-wide credential list
	// while a worker runs against a reduced copy.
	credMu sync.Mutex
}

// NewRegistry creates an empty worker registry bound to the
// process-wide configuration.
func NewRegistry(cfg *config.Config, devices DeviceLookup) *Registry {
	return &Registry{
		cfg:        cfg,
		devices:    devices,
		hooks:      make(map[hookKey][]registration),
		phaseOrder: make(map[domain.Action][]phaseRef),
	}
}

// Register adds a worker. Registrations naming an unknown action or
// phase are configuration errors. Multiple registrations against the
// same (action, phase, primary) triple compose in registration order.
func (r *Registry) Register(name string, spec Spec, run Runner) error {
	if run == nil {
		return fmt.Errorf("worker %s: nil runner", name)
	}
	if !domain.ValidAction(spec.Action) {
		return fmt.Errorf("worker %s: unknown action %q", name, spec.Action)
	}
	if spec.Phase == "" {
		spec.Phase = PhaseInit
	}
	if !validPhase(spec.Phase) {
		return fmt.Errorf("worker %s: unknown phase %q", name, spec.Phase)
	}

	key := hookKey{action: spec.Action, phase: spec.Phase, primary: spec.Primary}
	if len(r.hooks[key]) == 0 {
		r.phaseOrder[spec.Action] = append(r.phaseOrder[spec.Action],
			phaseRef{phase: spec.Phase, primary: spec.Primary})
	}
	r.hooks[key] = append(r.hooks[key], registration{name: name, spec: spec, run: run})

	log.Printf("Registered worker %s (action=%s, phase=%s, driver=%s, primary=%v)",
		name, spec.Action, spec.Phase, spec.Driver, spec.Primary)
	return nil
}

// RunJob dispatches a job through every hook installed for its action,
// in first-installed order. Dispatch stops at the first phase whose
// primary outcome is deferred or errored; the phase outcomes already
// produced stand.
func (r *Registry) RunJob(ctx context.Context, job *domain.Job) Status {
	if !domain.ValidAction(job.Action) {
		return Errored("unknown action %q", job.Action)
	}

	device := r.lookupDevice(ctx, job.Target)

	overall := Noop("no workers for action %s", job.Action)
	seen := make(map[Phase]bool)
	for _, ref := range r.phaseOrder[job.Action] {
		if seen[ref.phase] {
			continue // both hooks of a phase run together
		}
		seen[ref.phase] = true
		st := r.runPhase(ctx, job, device, ref.phase)
		switch st.Code {
		case CodeDeferred, CodeErrored:
			return st
		case CodeDone:
			overall = st
		}
	}
	return overall
}

// RunPhase runs a single phase of an action for a job: primary workers
// first, then secondary ones. The returned status reflects the primary
// workers only.
func (r *Registry) RunPhase(ctx context.Context, action domain.Action, phase Phase, job *domain.Job) Status {
	device := r.lookupDevice(ctx, job.Target)
	return r.runPhase(ctx, job, device, phase)
}

func (r *Registry) runPhase(ctx context.Context, job *domain.Job, device *domain.Device, phase Phase) Status {
	primary := r.hooks[hookKey{action: job.Action, phase: phase, primary: true}]
	secondary := r.hooks[hookKey{action: job.Action, phase: phase, primary: false}]

	outcome := Noop("no applicable workers in phase %s", phase)
	for _, reg := range primary {
		st := r.runOne(ctx, reg, job, device)
		log.Printf("Worker %s for %s: %s", reg.name, job, st)
		outcome = better(outcome, st)
	}

	for _, reg := range secondary {
		st := r.runOne(ctx, reg, job, device)
		log.Printf("Worker %s for %s: %s", reg.name, job, st)
	}

	return outcome
}

// better keeps the more significant of two phase outcomes. A completed
// primary worker satisfies the phase even when a sibling failed.
func better(a, b Status) Status {
	rank := func(c Code) int {
		switch c {
		case CodeDone:
			return 3
		case CodeDeferred:
			return 2
		case CodeErrored:
			return 1
		default:
			return 0
		}
	}
	if rank(b.Code) > rank(a.Code) {
		return b
	}
	return a
}

// runOne executes a single registration with credential scoping and
// failure isolation.
func (r *Registry) runOne(ctx context.Context, reg registration, job *domain.Job, device *domain.Device) (st Status) {
	if len(reg.spec.No) > 0 && config.MatchACL(device, reg.spec.No) {
		return Noop("device %s matches no ACL", device.IP)
	}
	if len(reg.spec.Only) > 0 && !config.MatchACL(device, reg.spec.Only) {
		return Noop("device %s outside only ACL", device.IP)
	}

	reduced := r.reduceCredentials(reg.spec, device)
	if len(reduced) == 0 {
		return Noop("no usable credentials for %s", device.IP)
	}

	restore := r.scopeCredentials(reduced)
	defer restore()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Worker %s panicked for %s: %v", reg.name, job, rec)
			st = Errored("worker %s panicked: %v", reg.name, rec)
		}
	}()

	return reg.run(ctx, job, device)
}

// reduceCredentials filters the configured stanzas down to those this
// worker may use against this device.
func (r *Registry) reduceCredentials(spec Spec, device *domain.Device) []config.Credential {
	var kept []config.Credential
	for _, cred := range r.cfg.Credentials {
		if spec.Driver != "" && cred.Driver != "" && cred.Driver != spec.Driver {
			continue
		}
		if len(cred.No) > 0 && config.MatchACL(device, cred.No) {
			continue
		}
		if len(cred.Only) > 0 && !config.MatchACL(device, cred.Only) {
			continue
		}
		kept = append(kept, cred)
	}
	return kept
}

// scopeCredentials swaps the process-wide credential list for a
// reduced copy and returns the restore function. The lock is held
// until restore runs, so one worker's reduced view can never leak into
// another's.
func (r *Registry) scopeCredentials(reduced []config.Credential) func() {
	r.credMu.Lock()
	saved := r.cfg.Credentials
	r.cfg.Credentials = reduced
	return func() {
		r.cfg.Credentials = saved
		r.credMu.Unlock()
	}
}

func (r *Registry) lookupDevice(ctx context.Context, target string) *domain.Device {
	if r.devices != nil {
		if d, err := r.devices.GetDevice(ctx, target); err == nil && d != nil {
			return d
		}
	}
	// Unknown targets still need ACL evaluation by address.
	return domain.NewDevice(target)
}
