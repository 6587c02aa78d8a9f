// Package builtin provides the sample tools shipped with opsframe and adds
// them to the registry catalog.
package builtin

import (
	"time"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/registry"
	"github.com/harun/opsframe/pkg/tool"
)

// Backends used by the catalog factories.
var (
	DefaultDirectory = NewDirectory(
		Employee{ID: "E-1001", Name: "Dana Whitfield", Title: "VP People", Department: "people", Email: "dana@example.com"},
		Employee{ID: "E-1002", Name: "Ravi Menon", Title: "Recruiter", Department: "people", Email: "ravi@example.com", ManagerID: "E-1001"},
		Employee{ID: "E-2001", Name: "Sofia Lindqvist", Title: "Controller", Department: "finance", Email: "sofia@example.com"},
	)
	DefaultLedger = NewLedger(time.Now)
	DefaultOutbox = NewOutbox()
)

func init() {
	registry.Provide(registry.Plugin{
		Name:     "hris_lookup",
		Manifest: HRISLookupManifest(),
		New: func(m tool.Manifest, _ registry.Env) (tool.Tool, error) {
			return NewHRISLookup(m, DefaultDirectory), nil
		},
	})
	registry.Provide(registry.Plugin{
		Name:     "payment_transfer",
		Manifest: PaymentTransferManifest(),
		New: func(m tool.Manifest, env registry.Env) (tool.Tool, error) {
			return action.NewRunner(NewPaymentTransfer(m, DefaultLedger), services(env)), nil
		},
	})
	registry.Provide(registry.Plugin{
		Name:     "email_send",
		Manifest: EmailSendManifest(),
		New: func(m tool.Manifest, env registry.Env) (tool.Tool, error) {
			return action.NewRunner(NewEmailSend(m, DefaultOutbox), services(env)), nil
		},
	})
}

func services(env registry.Env) action.Services {
	svc := env.Services
	svc.Logger = env.Logger
	return svc
}
