package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/bus"
)

// terminalApprover answers approval requests on the bus from a terminal.
// With a fixed answer set it replies without prompting.
type terminalApprover struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	answer string
}

func newTerminalApprover(in io.Reader, out io.Writer, answer string) *terminalApprover {
	return &terminalApprover{in: bufio.NewReader(in), out: out, answer: answer}
}

// attach subscribes to approval requests until the returned func is called.
func (a *terminalApprover) attach(b *bus.Bus) func() {
	return b.SubscribeAsync(action.TopicApprovalRequest, func(msg bus.Message) {
		approval, ok := action.ApprovalFrom(msg)
		if !ok {
			return
		}
		answer := a.ask(approval)
		if err := b.Respond(action.Reply(msg, answer, "terminal")); err != nil {
			fmt.Fprintf(a.out, "Approval %s was not delivered: %v\n", approval.ID, err)
		}
	})
}

// ask prompts for one approval. Prompts are serialized so concurrent
// requests do not interleave on the terminal.
func (a *terminalApprover) ask(approval action.Approval) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, "\nApproval required for %s\n", approval.ActionName)
	if approval.Description != "" {
		fmt.Fprintf(a.out, "  %s\n", approval.Description)
	}
	fmt.Fprintf(a.out, "  Risk: %s  Cost: $%.2f  Expires: %s\n",
		approval.RiskTier, approval.CostEstimate, approval.ExpiresAt.Format("15:04:05"))
	if approval.Requires2FA {
		fmt.Fprintln(a.out, "  This action requires second-factor confirmation.")
	}

	if a.answer != "" {
		fmt.Fprintf(a.out, "Answer: %s\n", a.answer)
		return a.answer
	}

	fmt.Fprint(a.out, "Approve? [y/N]: ")
	line, err := a.in.ReadString('\n')
	answer := strings.TrimSpace(line)
	if answer == "" || (err != nil && err != io.EOF) {
		return "no"
	}
	return answer
}
