package guard

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/warden/budget"
)

// ToolKind classifies an intercepted tool invocation.
type ToolKind string

const (
	ToolRead    ToolKind = "read"
	ToolWrite   ToolKind = "write"
	ToolEdit    ToolKind = "edit"
	ToolDelete  ToolKind = "delete"
	ToolCommand ToolKind = "command"
)

// writeCapable reports whether the kind can mutate files.
func (k ToolKind) writeCapable() bool {
	switch k {
	case ToolWrite, ToolEdit, ToolDelete, ToolCommand:
		return true
	}
	return false
}

// ToolCall is one intercepted tool invocation.
type ToolCall struct {
	// Kind is the tool's classification.
	Kind ToolKind
	// Path is the target path for read/write/edit/delete kinds.
	Path string
	// Command is the raw command text for the command kind.
	Command string
	// Size is the byte size of a read, charged against the budget.
	Size int64
	// Delegated marks a call already vetted by an outer enforcer.
	// Checked exactly once; a delegated call is never re-delegated.
	Delegated bool
}

// ErrDenied is the sentinel for every enforcer denial.
var ErrDenied = errors.New("tool call denied")

// DeniedError reports one blocked tool call with an actionable reason.
type DeniedError struct {
	Kind   ToolKind
	Target string
	Reason string
	// Category is the matched protection category for classifier denials.
	// Empty for budget and universal-command denials.
	Category Category
	// Err carries the underlying cause when one exists, e.g. the
	// budget.ExceededError behind a budget denial.
	Err error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("denied %s of %s: %s", e.Kind, e.Target, e.Reason)
}

// Is matches the ErrDenied sentinel. Budget denials additionally match
// budget.ErrBudgetExceeded through Unwrap.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Unwrap returns the underlying cause, if any.
func (e *DeniedError) Unwrap() error { return e.Err }

// Interceptor is the verdict surface an enforcer exposes. A nil error
// allows the call; an error matching ErrDenied blocks it.
type Interceptor interface {
	Intercept(call ToolCall) error
}

// Enforcer gates every tool call for a run. Composition order per call:
// outer delegation, universal checks, phase-scoped write protection,
// read-budget accounting. Denials are synchronous and fatal only to the
// single call; the enforcer never downgrades a denial to a warning.
type Enforcer struct {
	config     Config
	classifier *Classifier
	commands   CommandClassifier
	ledger     *budget.Ledger
	// outer, when set, is the orchestrator-level enforcer this one
	// defers to for non-delegated calls.
	outer Interceptor
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithOuter sets the outer orchestrator enforcer. Non-delegated calls are
// handed to it wholesale so the same read is never charged against two
// budgets.
func WithOuter(outer Interceptor) Option {
	return func(e *Enforcer) { e.outer = outer }
}

// WithCommandClassifier replaces the default regex command classifier.
func WithCommandClassifier(c CommandClassifier) Option {
	return func(e *Enforcer) { e.commands = c }
}

// WithClassifier replaces the default path classifier. The classifier's
// allowlist should already include config.AllowedPaths.
func WithClassifier(c *Classifier) Option {
	return func(e *Enforcer) { e.classifier = c }
}

// NewEnforcer builds an enforcer from an explicit Config. No environment
// lookups happen after construction.
func NewEnforcer(config Config, opts ...Option) *Enforcer {
	e := &Enforcer{
		config:   config,
		commands: NewCommandClassifier(),
		ledger: budget.NewLedger(budget.Config{
			StateDir:     config.StateDir,
			Budget:       config.Budget,
			MaxReadBytes: config.MaxReadBytes,
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = NewClassifier(ClassifierConfig{AllowedPaths: config.AllowedPaths})
	}
	return e
}

// Intercept applies the full composition to one tool call.
func (e *Enforcer) Intercept(call ToolCall) error {
	// A delegated enforcer trusts the outer orchestrator's verdicts
	// wholesale: every call arriving here was already checked and charged
	// there, so checking or charging again would double-count.
	if e.config.Delegated {
		return nil
	}

	// An outer enforcer owns the verdict for calls that did not already
	// pass through it. The flag flips exactly once.
	if e.outer != nil && !call.Delegated {
		call.Delegated = true
		return e.outer.Intercept(call)
	}

	if err := e.universalChecks(call); err != nil {
		return err
	}
	if err := e.phaseProtection(call); err != nil {
		return err
	}
	return e.chargeRead(call)
}

// universalChecks apply to every write-capable call regardless of phase.
func (e *Enforcer) universalChecks(call ToolCall) error {
	if call.Kind != ToolCommand {
		return nil
	}
	if e.commands.PrivilegeEscalation(call.Command) {
		return &DeniedError{
			Kind:   call.Kind,
			Target: call.Command,
			Reason: "privilege escalation is not permitted in a phase",
		}
	}
	if e.commands.RevertsFiles(call.Command) {
		for _, target := range e.commands.Targets(call.Command) {
			if cls := e.classifier.Classify(target, e.config.Phase); cls.Protected {
				return &DeniedError{
					Kind:     call.Kind,
					Target:   target,
					Reason:   fmt.Sprintf("version-control revert would restore protected %s file", cls.Category),
					Category: cls.Category,
				}
			}
		}
	}
	return nil
}

// phaseProtection denies writes to paths the active phase protects.
func (e *Enforcer) phaseProtection(call ToolCall) error {
	if !call.Kind.writeCapable() {
		return nil
	}

	switch call.Kind {
	case ToolWrite, ToolEdit, ToolDelete:
		if cls := e.classifier.Classify(call.Path, e.config.Phase); cls.Protected {
			return &DeniedError{
				Kind:     call.Kind,
				Target:   call.Path,
				Reason:   fmt.Sprintf("%s files are read-only during the %q phase", cls.Category, e.config.Phase),
				Category: cls.Category,
			}
		}
	case ToolCommand:
		if !e.commands.Mutating(call.Command) {
			return nil
		}
		for _, target := range e.commands.Targets(call.Command) {
			if cls := e.classifier.Classify(target, e.config.Phase); cls.Protected {
				return &DeniedError{
					Kind:     call.Kind,
					Target:   target,
					Reason:   fmt.Sprintf("command would mutate protected %s file during the %q phase", cls.Category, e.config.Phase),
					Category: cls.Category,
				}
			}
		}
	}
	return nil
}

// chargeRead accounts a read against the budget, after the allowlist
// exempts what it exempts.
func (e *Enforcer) chargeRead(call ToolCall) error {
	if call.Kind != ToolRead {
		return nil
	}
	if e.classifier.Allowlisted(call.Path) {
		return nil
	}
	if err := e.ledger.Charge(e.config.RunKey, call.Path, call.Size); err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return &DeniedError{
				Kind:   call.Kind,
				Target: call.Path,
				Reason: err.Error(),
				Err:    err,
			}
		}
		return err
	}
	return nil
}

// BudgetSnapshot exposes the run's current budget state for status output.
func (e *Enforcer) BudgetSnapshot() (*budget.State, error) {
	return e.ledger.Snapshot(e.config.RunKey)
}
