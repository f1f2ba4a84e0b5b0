package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/question"
	"github.com/zulandar/intake/internal/store"
	"github.com/zulandar/intake/internal/textui"
)

// commandPrefix is the prefix that triggers command handling.
const commandPrefix = "!intake"

// Replies sent by the router.
const (
	startedReply  = "Thanks, let me take a look..."
	busyReply     = "Still working on your last answer, one moment."
	completeReply = "This intake is complete. Post a new message to start another."
	expiredReply  = "This intake is no longer active. Post a new message to start again."
	occupiedReply = "An intake is already running in this thread."
	resetReply    = "Starting over. Describe what you need in this thread."
	helpReply     = "Reply in this thread to answer each question.\n" +
		"`!intake reset` starts over, `!intake dismiss` clears a notice, `!intake status` shows the current question."
)

// Router classifies inbound chat messages and routes them to the intake
// running in their thread, opening one for new top-level messages.
type Router struct {
	adapter   Adapter
	gw        gateway.Gateway
	store     *store.Store
	metrics   *metrics.Metrics
	botUserID string
	channelID string // when set, only top-level messages here open intakes
	out       io.Writer

	mu    sync.Mutex
	convs map[string]*conversation // key: "channelID:threadID"
}

// conversation is one intake bound to a chat thread.
type conversation struct {
	key       string
	channelID string
	threadID  string
	rowID     uint
	ctrl      *intake.Controller
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Adapter   Adapter
	Gateway   gateway.Gateway
	Store     *store.Store
	Metrics   *metrics.Metrics // optional
	BotUserID string           // bot's user ID for self-message filtering
	ChannelID string           // optional channel restriction for new intakes
	Out       io.Writer        // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bridge: router: adapter is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: router: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: router: store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		adapter:   opts.Adapter,
		gw:        opts.Gateway,
		store:     opts.Store,
		metrics:   opts.Metrics,
		botUserID: opts.BotUserID,
		channelID: opts.ChannelID,
		out:       out,
		convs:     make(map[string]*conversation),
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message → ignore
//  2. Command prefix "!intake" → command handler
//  3. Message in a thread with a live intake → answer
//  4. Thread reply with an orphaned active intake → expire it
//  5. Top-level message → open a new intake
//  6. Everything else → ignore
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}

	text := stripMentions(msg.Text)
	threadID := resolveThreadID(msg.ChannelID, msg.ThreadID)
	key := threadKey(msg.ChannelID, threadID)
	fmt.Fprintf(r.out, "bridge: router: recv [ch=%s thread=%s user=%s] %d chars\n",
		msg.ChannelID, threadID, msg.UserName, len(text))

	if isCommand(text) {
		r.handleCommand(ctx, msg, key, threadID, text)
		return
	}

	if conv := r.lookup(key); conv != nil {
		r.answer(ctx, conv, text)
		return
	}

	if msg.ThreadID != "" {
		r.expireOrphan(ctx, msg.ChannelID, msg.ThreadID, key)
		return
	}

	if r.channelID != "" && msg.ChannelID != r.channelID {
		fmt.Fprintf(r.out, "bridge: router: → ignore (channel %s not configured)\n", msg.ChannelID)
		return
	}
	r.open(ctx, msg, text)
}

// Active returns the number of live intakes.
func (r *Router) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

func (r *Router) lookup(key string) *conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convs[key]
}

func (r *Router) forget(conv *conversation) {
	r.mu.Lock()
	if r.convs[conv.key] == conv {
		delete(r.convs, conv.key)
	}
	r.mu.Unlock()
}

// open starts an intake for a top-level message, in a new platform thread
// when the adapter can create one.
func (r *Router) open(ctx context.Context, msg InboundMessage, text string) {
	threadID := resolveThreadID(msg.ChannelID, msg.MessageID)
	if ts, ok := r.adapter.(ThreadStarter); ok && msg.MessageID != "" {
		id, err := ts.StartThread(ctx, msg.ChannelID, msg.MessageID, startedReply, threadName(msg.UserName))
		if err != nil {
			log.Printf("bridge: router: start thread: %v", err)
		} else {
			threadID = id
		}
	}

	conv, err := r.bind(msg.Platform, msg.UserName, msg.ChannelID, threadID)
	if err != nil {
		var busy *store.ThreadBusyError
		if errors.As(err, &busy) {
			r.reply(ctx, msg.ChannelID, threadID, occupiedReply)
			return
		}
		log.Printf("bridge: router: open intake: %v", err)
		return
	}
	fmt.Fprintf(r.out, "bridge: router: → new intake [ch=%s thread=%s]\n", msg.ChannelID, threadID)
	r.answer(ctx, conv, text)
}

// bind acquires the thread in the store and registers a fresh controller.
func (r *Router) bind(platform, userName, channelID, threadID string) (*conversation, error) {
	key := threadKey(channelID, threadID)
	row, err := r.store.AcquireThread(platform, userName, key)
	if err != nil {
		return nil, err
	}
	conv := &conversation{key: key, channelID: channelID, threadID: threadID, rowID: row.ID}

	track := r.store.Track(row.ID)
	ctrl, err := intake.New(intake.Opts{
		Gateway:  r.gw,
		IDs:      r.store.Slot(row.ID),
		Recorder: r.store.Recorder(row.ID),
		// Chat threads cannot carry a drawn signature.
		SignatureMode: question.SignatureSentinel,
		Metrics:       r.metrics,
		OnEvent: func(ev intake.Event) {
			track(ev)
			if ev.Kind == intake.EventTyping && ev.State.Typing {
				r.typing(conv)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	conv.ctrl = ctrl

	r.mu.Lock()
	r.convs[key] = conv
	r.mu.Unlock()
	return conv, nil
}

// answer parses text against the active question and submits it.
func (r *Router) answer(ctx context.Context, conv *conversation, text string) {
	st := conv.ctrl.State()
	a, err := textui.ParseReply(st.Question, text)
	if err != nil {
		r.replyTo(ctx, conv, err.Error())
		return
	}

	turn, err := conv.ctrl.Submit(ctx, a)
	switch {
	case errors.Is(err, intake.ErrBusy):
		r.replyTo(ctx, conv, busyReply)
		return
	case errors.Is(err, intake.ErrComplete):
		r.forget(conv)
		r.replyTo(ctx, conv, completeReply)
		return
	case errors.Is(err, intake.ErrStale):
		return
	}

	switch turn.Status {
	case intake.TurnRejected:
		msg := turn.Validation.Message
		if h := textui.Hint(questionOrText(turn.State.Question)); h != "" {
			msg += " " + h
		}
		r.replyTo(ctx, conv, msg)
	case intake.TurnQuestion:
		r.replyTo(ctx, conv, textui.RenderQuestion(turn.State.Question))
	case intake.TurnComplete:
		r.forget(conv)
		r.replyTo(ctx, conv, lastBotMessage(conv.ctrl.Log()))
	case intake.TurnTransport:
		r.replyTo(ctx, conv, lastBotMessage(conv.ctrl.Log()))
	case intake.TurnNotice:
		r.replyTo(ctx, conv, fmt.Sprintf("⚠️ %s\n(`%s dismiss` to clear)", turn.State.Notice, commandPrefix))
	case intake.TurnNoop:
		log.Printf("bridge: router: %s produced no update for %s", turn.Endpoint, conv.key)
	}
}

// expireOrphan abandons an active intake whose controller is gone, as after
// a restart, and tells the thread to start over.
func (r *Router) expireOrphan(ctx context.Context, channelID, threadID, key string) {
	row, err := r.store.ActiveForThread(key)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("bridge: router: lookup thread %s: %v", key, err)
		return
	}
	if err := r.store.Abandon(row.ID); err != nil {
		log.Printf("bridge: router: abandon %s: %v", row.Handle, err)
	}
	r.reply(ctx, channelID, threadID, expiredReply)
}

// handleCommand dispatches a "!intake" command.
func (r *Router) handleCommand(ctx context.Context, msg InboundMessage, key, threadID, text string) {
	fields := strings.Fields(strings.TrimPrefix(text, commandPrefix))
	sub := "help"
	if len(fields) > 0 {
		sub = strings.ToLower(fields[0])
	}
	conv := r.lookup(key)

	switch sub {
	case "reset":
		if conv == nil {
			r.reply(ctx, msg.ChannelID, threadID, expiredReply)
			return
		}
		conv.ctrl.NewSession()
		r.forget(conv)
		if err := r.store.Abandon(conv.rowID); err != nil {
			log.Printf("bridge: router: abandon %s: %v", conv.key, err)
		}
		if _, err := r.bind(msg.Platform, msg.UserName, conv.channelID, conv.threadID); err != nil {
			log.Printf("bridge: router: reopen %s: %v", conv.key, err)
			return
		}
		r.reply(ctx, msg.ChannelID, threadID, resetReply)

	case "dismiss":
		if conv == nil {
			return
		}
		conv.ctrl.DismissNotice()
		r.replyTo(ctx, conv, statusText(conv.ctrl.State()))

	case "status":
		if conv == nil {
			r.reply(ctx, msg.ChannelID, threadID, expiredReply)
			return
		}
		r.replyTo(ctx, conv, statusText(conv.ctrl.State()))

	default:
		r.reply(ctx, msg.ChannelID, threadID, helpReply)
	}
}

func (r *Router) typing(conv *conversation) {
	t, ok := r.adapter.(Typer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Typing(ctx, conv.channelID, conv.threadID); err != nil {
		log.Printf("bridge: router: typing: %v", err)
	}
}

func (r *Router) replyTo(ctx context.Context, conv *conversation, text string) {
	r.reply(ctx, conv.channelID, conv.threadID, text)
}

func (r *Router) reply(ctx context.Context, channelID, threadID, text string) {
	if text == "" {
		return
	}
	if threadID == channelID {
		threadID = ""
	}
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      text,
	}); err != nil {
		log.Printf("bridge: router: send reply: %v", err)
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// statusText describes where an intake stands.
func statusText(st intake.State) string {
	switch st.Status {
	case intake.StatusComplete:
		return completeReply
	case intake.StatusUnstarted:
		return "Describe what you need to begin."
	}
	var b strings.Builder
	if st.Phase != intake.PhaseNone {
		fmt.Fprintf(&b, "Phase: %s\n", st.Phase)
	}
	if st.Notice != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", st.Notice)
	}
	b.WriteString(textui.RenderQuestion(st.Question))
	return strings.TrimSpace(b.String())
}

func questionOrText(q *question.Question) *question.Question {
	if q == nil {
		return &question.Question{Type: question.TypeText}
	}
	return q
}

func lastBotMessage(l *intake.Log) string {
	msgs := l.All()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Author == intake.AuthorBot {
			return msgs[i].Payload
		}
	}
	return ""
}

// resolveThreadID returns the effective thread ID for intake lookups.
// For top-level channel messages (empty threadID), the channel ID is used
// as the thread key.
func resolveThreadID(channelID, threadID string) string {
	if threadID == "" {
		return channelID
	}
	return threadID
}

func threadKey(channelID, threadID string) string {
	return channelID + ":" + threadID
}

func threadName(userName string) string {
	if userName == "" {
		return "Intake"
	}
	return "Intake for " + userName
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix+" ") || text == commandPrefix
}

// mentionRe matches Slack <@U123> and Discord <@123> / <@!123> mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// stripMentions removes user mentions and surrounding space.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}
