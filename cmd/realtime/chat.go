package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/api"
	"github.com/mickaelvieira/realtime/binding"
	"github.com/mickaelvieira/realtime/client"
	"github.com/spf13/cobra"
)

var errExhausted = errors.New("could not connect to the chat session")

func chatCmd(a *app) *cobra.Command {
	var (
		sessionID int64
		title     string
		wait      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the library from the terminal",
		Long: `Open a chat session and send every line read from stdin
as a message. Answers are streamed as they arrive.

A new session is created when --session is not given.

Examples:
  realtime chat --title "Reading notes"
  realtime chat --session 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if sessionID == 0 {
				rest, err := api.NewClient(a.cfg.Origin)
				if err != nil {
					return err
				}

				session, err := rest.CreateChatSession(ctx, api.CreateChatSessionRequest{Title: title})
				if err != nil {
					return err
				}
				sessionID = session.ID
				a.logger.Info("created chat session", "session", session.ID, "title", session.Title)
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			replies := newReplies()

			b, err := binding.Use(ctx,
				binding.NewFactory(a.cfg.Origin, a.channelOptions()...),
				fmt.Sprintf("/ws/chat/%d", sessionID),
				chatHandlers(out, errOut, replies),
				binding.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			defer b.Release()

			if err := waitConnected(ctx, b.Statuses()); err != nil {
				return err
			}

			go a.watchStatuses(ctx, b.Statuses())

			sent, err := sendLines(ctx, cmd.InOrStdin(), b)
			if err != nil {
				return err
			}

			// stdin is exhausted, the answers may still be streaming
			if !replies.wait(ctx, sent, wait) && ctx.Err() == nil {
				a.logger.Warn("stopped waiting for answers", "sent", sent, "answered", replies.count())
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&sessionID, "session", "s", 0, "Existing chat session id")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title of the new chat session")
	cmd.Flags().DurationVarP(&wait, "wait", "w", time.Minute, "How long to wait for pending answers once input ends")

	return cmd
}

// replies counts the answers completed by a done or error frame
type replies struct {
	answered atomic.Int64
	notify   chan struct{}
}

func newReplies() *replies {
	return &replies{notify: make(chan struct{}, 1)}
}

func (r *replies) add() {
	r.answered.Add(1)
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *replies) count() int64 {
	return r.answered.Load()
}

// wait blocks until n answers completed, ctx is done or the timeout elapsed.
// It reports whether every answer arrived.
func (r *replies) wait(ctx context.Context, n int64, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for r.count() < n {
		select {
		case <-r.notify:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func chatHandlers(out, errOut io.Writer, r *replies) binding.Handlers {
	return binding.Handlers{
		"content": func(f realtime.Frame) {
			var chunk struct {
				Data string `json:"data"`
			}
			if err := f.Decode(&chunk); err == nil {
				fmt.Fprint(out, chunk.Data)
			}
		},
		"done": func(f realtime.Frame) {
			fmt.Fprintln(out)
			r.add()
		},
		"error": func(f realtime.Frame) {
			var payload struct {
				Data any `json:"data"`
			}
			if err := f.Decode(&payload); err == nil {
				fmt.Fprintf(errOut, "error: %v\n", payload.Data)
			}
			r.add()
		},
	}
}

// waitConnected blocks until the first connection is established
func waitConnected(ctx context.Context, statuses <-chan client.Status) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-statuses:
			switch s {
			case client.StatusConnected:
				return nil
			case client.StatusExhausted, client.StatusClosed:
				return errExhausted
			}
		}
	}
}

// sendLines sends each non empty line of r as a chat message and
// returns the number of messages sent
func sendLines(ctx context.Context, r io.Reader, b *binding.Binding) (int64, error) {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errs <- nil
				return
			}
		}
		errs <- scanner.Err()
	}()

	var sent int64
	for {
		select {
		case <-ctx.Done():
			return sent, nil
		case line, ok := <-lines:
			if !ok {
				return sent, <-errs
			}
			if content := strings.TrimSpace(line); content != "" {
				b.Send(map[string]string{"type": realtime.TypeDefault, "content": content})
				sent++
			}
		}
	}
}
