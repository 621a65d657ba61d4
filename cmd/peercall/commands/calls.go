package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/opd-ai/peercall"
	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newListenCmd() *cobra.Command {
	var autoAccept bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Wait for incoming calls until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := openInstance()
			if err != nil {
				return err
			}
			defer p.Stop()

			out := cmd.OutOrStdout()
			answers := readLines(ctx, cmd.InOrStdin())
			p.OnCallState(printState(out))
			p.OnIncomingCall(func(c *call.Call) {
				contact := c.Contact()
				printf(out, "Incoming call from %s (%s)\n", contact.Name, crypto.FormatPublicKey(contact.PublicKey))
				if autoAccept {
					go func() {
						if err := c.Accept(ctx); err != nil {
							printf(out, "Accept failed: %v\n", err)
						}
					}()
					return
				}
				go answerPrompt(ctx, out, answers, c)
			})

			if err := p.Start(); err != nil {
				return err
			}
			printf(out, "Listening on %s\n", p.Addr())

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "Accept every incoming call")
	return cmd
}

// ringingCall is the part of *call.Call the answer prompt drives.
type ringingCall interface {
	Accept(ctx context.Context) error
	Decline() error
	Done() <-chan struct{}
}

// readLines feeds lines from r into the returned channel until EOF or until
// ctx ends. It is the only reader of r.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// answerPrompt asks whether to take a ringing call. It gives up when the
// call ends first, leaving the next line for the next prompt.
func answerPrompt(ctx context.Context, out io.Writer, lines <-chan string, c ringingCall) {
	discardPending(lines)
	printf(out, "Accept? [y/N] ")

	select {
	case line, ok := <-lines:
		if ok && strings.EqualFold(strings.TrimSpace(line), "y") {
			if err := c.Accept(ctx); err != nil {
				printf(out, "Accept failed: %v\n", err)
			}
			return
		}
		_ = c.Decline()
	case <-c.Done():
		printf(out, "\nCall no longer ringing\n")
	case <-ctx.Done():
	}
}

// discardPending drops a line typed while no call was ringing.
func discardPending(lines <-chan string) {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func printState(out io.Writer) call.StateCallback {
	return func(c *call.Call, state call.CallState) {
		line := fmt.Sprintf("[%s] %s call with %s: %s", c.ID(), c.Direction(), c.Contact().Name, state)
		if err := c.Err(); err != nil && state == call.CallStateError {
			line += ": " + err.Error()
		}
		printf(out, "%s\n", line)
	}
}

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call NAME",
		Short: "Call a contact and stay connected until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := openInstance()
			if err != nil {
				return err
			}
			defer p.Stop()

			p.OnCallState(printState(cmd.OutOrStdout()))
			if err := p.Start(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "call",
					"error":    err.Error(),
				}).Warn("Not listening for incoming calls")
			}

			c, err := p.Call(ctx, args[0])
			if err != nil {
				return err
			}

			state, err := c.Wait(ctx)
			if err != nil {
				// Interrupted while the call was still running.
				return c.Hangup()
			}
			if state == call.CallStateError {
				return c.Err()
			}
			return nil
		},
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping NAME",
		Short: "Check whether a contact is online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}
			defer p.Stop()

			online, err := p.Ping(cmd.Context(), args[0])
			if err != nil {
				printf(cmd.OutOrStdout(), "%s is offline: %v\n", args[0], err)
				return nil
			}
			status := "offline"
			if online {
				status = "online"
			}
			printf(cmd.OutOrStdout(), "%s is %s\n", args[0], status)
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the call history",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openInstance()
			if err != nil {
				return err
			}
			if clear {
				p.Database().ClearEvents()
				return p.Save()
			}
			return printEvents(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete the call history")
	return cmd
}

func printEvents(out io.Writer, p *peercall.PeerCall) error {
	db := p.Database()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	printf(w, "DATE\tCONTACT\tEVENT\tADDRESS\n")
	for _, e := range db.Events() {
		name := crypto.KeyPreview(e.PublicKey)
		if c, ok := db.ContactByPublicKey(e.PublicKey); ok {
			name = c.Name
		}
		printf(w, "%s\t%s\t%s\t%s\n", e.Date.Format("2006-01-02 15:04:05"), name, e.Type, e.Address)
	}
	return w.Flush()
}
