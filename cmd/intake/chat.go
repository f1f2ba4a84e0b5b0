package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/intake/internal/capture"
	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/question"
	"github.com/zulandar/intake/internal/store"
	"github.com/zulandar/intake/internal/textui"
)

// Source tag for sessions held in the terminal.
const chatSource = "cli"

const chatHelp = `Commands: /voice  record the opening description from --voice
          /sign   sign with the image from --signature
          /reset  start over
          /dismiss  clear the current notice
          /quit   leave`

type chatOpts struct {
	configPath    string
	voicePath     string
	signaturePath string
	noStore       bool
}

func newChatCmd() *cobra.Command {
	var opts chatOpts

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold an intake conversation in the terminal",
		Long: `Starts a conversation with the dialogue service. Describe what you need,
then answer each question until the service returns a summary. Replies to
choice questions may be option numbers or option text.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)
	cmd.Flags().StringVar(&opts.voicePath, "voice", "", "WAV or raw PCM file played back by /voice")
	cmd.Flags().StringVar(&opts.signaturePath, "signature", "", "PNG or JPEG image submitted by /sign")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not persist the conversation")
	return cmd
}

func runChat(cmd *cobra.Command, opts chatOpts) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd, opts.configPath)
	if err != nil {
		return err
	}
	defer startTracing(cfg, cmd.ErrOrStderr())()

	m := metrics.Default()
	ctrlOpts := intake.Opts{
		Gateway:       newGateway(cfg, m),
		SignatureMode: question.SignatureMode(cfg.Signature.Mode),
		Metrics:       m,
	}

	var binding *store.Binding
	if !opts.noStore {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		sess, err := st.Open(chatSource, currentUser())
		if err != nil {
			return err
		}
		binding = st.Bind(sess)
		ctrlOpts.IDs = binding
		ctrlOpts.Recorder = binding
		ctrlOpts.OnEvent = binding.OnEvent
	}

	ctrl, err := intake.New(ctrlOpts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(out)
	defer cancel()

	c := &chat{
		ctrl:        ctrl,
		out:         out,
		interactive: isTerminal(cmd.InOrStdin()),
		opts:        opts,
		guard:       &capture.Guard{},
	}
	done, err := c.run(ctx, cmd.InOrStdin())
	if binding != nil && !done {
		if err := binding.Abandon(); err != nil {
			return err
		}
	}
	return err
}

// chat drives one controller from line-oriented input.
type chat struct {
	ctrl        *intake.Controller
	out         io.Writer
	interactive bool
	opts        chatOpts
	guard       *capture.Guard
	printed     int
}

// run reads replies until the intake completes, the input ends or the user
// quits. It reports whether the intake completed.
func (c *chat) run(ctx context.Context, in io.Reader) (bool, error) {
	fmt.Fprintln(c.out, "Describe what you need. Type /help for commands.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if c.interactive {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return false, scanner.Err()
		}
		if ctx.Err() != nil {
			return false, nil
		}

		answer, ok := c.command(ctx, strings.TrimSpace(scanner.Text()))
		if !ok {
			continue
		}
		if answer == nil {
			return false, nil
		}

		turn, err := c.ctrl.Submit(ctx, *answer)
		switch {
		case errors.Is(err, intake.ErrComplete):
			return true, nil
		case err != nil:
			return false, err
		}
		if c.show(turn) {
			return true, nil
		}
	}
}

// command interprets one input line. It returns ok=false when the line was
// handled locally, and a nil answer when the user quit.
func (c *chat) command(ctx context.Context, line string) (*question.Answer, bool) {
	switch line {
	case "/quit", "/exit":
		return nil, true
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
		return nil, false
	case "/reset":
		c.ctrl.NewSession()
		c.printed = c.ctrl.Log().Len()
		fmt.Fprintln(c.out, "Starting over. Describe what you need.")
		return nil, false
	case "/dismiss":
		c.ctrl.DismissNotice()
		return nil, false
	case "/voice":
		if c.opts.voicePath == "" {
			fmt.Fprintln(c.out, "! no recording configured (use --voice)")
			return nil, false
		}
		audio, err := capture.Record(ctx, c.guard, capture.FileMicrophone{Path: c.opts.voicePath})
		if err != nil {
			fmt.Fprintf(c.out, "! recording failed: %v\n", err)
			return nil, false
		}
		return &question.Answer{Audio: audio}, true
	case "/sign":
		if c.opts.signaturePath == "" {
			fmt.Fprintln(c.out, "! no signature image configured (use --signature)")
			return nil, false
		}
		art, err := capture.Sign(ctx, c.guard, capture.FilePad{Path: c.opts.signaturePath})
		if err != nil {
			fmt.Fprintf(c.out, "! signature failed: %v\n", err)
			return nil, false
		}
		return &question.Answer{Signature: art}, true
	}

	a, err := textui.ParseReply(c.ctrl.State().Question, line)
	if err != nil {
		fmt.Fprintf(c.out, "! %v\n", err)
		return nil, false
	}
	return &a, true
}

// show prints what a turn produced and reports whether the intake is done.
func (c *chat) show(turn intake.Turn) bool {
	msgs := c.ctrl.Log().All()
	for i := c.printed; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Author != intake.AuthorBot {
			continue
		}
		if i == len(msgs)-1 && turn.Status == intake.TurnQuestion && turn.State.Question != nil {
			fmt.Fprintf(c.out, "bot: %s\n", textui.RenderQuestion(turn.State.Question))
			continue
		}
		fmt.Fprintln(c.out, textui.RenderMessage(msg))
	}
	c.printed = len(msgs)

	switch turn.Status {
	case intake.TurnRejected:
		msg := turn.Validation.Message
		if hint := textui.Hint(turn.State.Question); hint != "" {
			msg += " " + hint
		}
		fmt.Fprintf(c.out, "! %s\n", msg)
	case intake.TurnNotice:
		fmt.Fprintf(c.out, "! %s (/dismiss to clear)\n", turn.State.Notice)
	case intake.TurnComplete:
		fmt.Fprintln(c.out, "Intake complete.")
		return true
	}
	return false
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
