package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/store"
)

// Daemon is the main bridge process. It connects to a chat platform via an
// Adapter, pumps inbound messages to a Router and runs transcript retention.
type Daemon struct {
	adapter   Adapter
	gw        gateway.Gateway
	store     *store.Store
	metrics   *metrics.Metrics
	channelID string
	pruneCron string
	keepDays  int
	out       io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter   Adapter
	Gateway   gateway.Gateway
	Store     *store.Store
	Metrics   *metrics.Metrics // optional
	ChannelID string           // optional channel restriction for new intakes
	PruneCron string           // retention schedule; empty disables
	KeepDays  int
	Out       io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bridge: adapter is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:   opts.Adapter,
		gw:        opts.Gateway,
		store:     opts.Store,
		metrics:   opts.Metrics,
		channelID: opts.ChannelID,
		pruneCron: opts.PruneCron,
		keepDays:  opts.KeepDays,
		out:       out,
	}, nil
}

// Run connects the adapter and blocks until the context is cancelled or the
// adapter closes its inbound channel. Each message is handled on its own
// goroutine; Run waits for them before returning.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Bridge connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Adapter:   d.adapter,
		Gateway:   d.gw,
		Store:     d.store,
		Metrics:   d.metrics,
		BotUserID: botUserID,
		ChannelID: d.channelID,
		Out:       d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: listen: %w", err)
	}

	go d.store.RunRetention(ctx, d.pruneCron, d.keepDays)

	fmt.Fprintf(d.out, "Bridge online\n")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Bridge shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bridge: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Bridge stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Bridge inbound channel closed\n")
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.Handle(ctx, msg)
			}()
		}
	}
}
