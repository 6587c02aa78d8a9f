// Package bus is an in-process publish/subscribe message bus with blocking
// request/reply, used to solicit human approval for actions.
package bus
