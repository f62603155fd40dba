package escalation

import (
	"context"
	"fmt"
	"io"
)

// WriterSurface opens the agent's join surface by printing the join URL.
type WriterSurface struct {
	Out io.Writer
}

func (s WriterSurface) OpenJoin(_ context.Context, _ Trigger, joinURL string) error {
	_, err := fmt.Fprintf(s.Out, "join=%s\n", joinURL)
	return err
}

// WriterNotifier shows the generic failure notice on a terminal.
type WriterNotifier struct {
	Out io.Writer
}

func (n WriterNotifier) NotifyFailure(_ context.Context, _ Trigger, message string) {
	_, _ = fmt.Fprintln(n.Out, message)
}

// WriterSender prints the conversation message instead of delivering it.
type WriterSender struct {
	Out io.Writer
}

func (s WriterSender) SendToConversation(_ context.Context, conversationKey, text string) error {
	_, err := fmt.Fprintf(s.Out, "conversation=%s message=%q\n", conversationKey, text)
	return err
}
