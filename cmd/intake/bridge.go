package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/intake/internal/bridge"
	discordadapter "github.com/zulandar/intake/internal/bridge/discord"
	slackadapter "github.com/zulandar/intake/internal/bridge/slack"
	"github.com/zulandar/intake/internal/config"
	"github.com/zulandar/intake/internal/metrics"
)

func newBridgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run intakes in Slack or Discord threads",
		Long: `Connects to the configured chat platform. Mentioning the bot starts an intake
in a new thread; replies in that thread answer its questions. Type
"!intake help" in a thread for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runBridge(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if cfg.Bridge.Platform == "" {
		return fmt.Errorf("bridge: no platform configured in %s (add bridge.platform)", configPath)
	}
	defer startTracing(cfg, cmd.ErrOrStderr())()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	m := metrics.Default()
	daemon, err := bridge.NewDaemon(bridge.DaemonOpts{
		Adapter:   adapter,
		Gateway:   newGateway(cfg, m),
		Store:     st,
		Metrics:   m,
		ChannelID: cfg.Bridge.Channel,
		PruneCron: cfg.Retention.PruneCron,
		KeepDays:  cfg.Retention.KeepDays,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()
	return daemon.Run(ctx)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (bridge.Adapter, error) {
	switch cfg.Bridge.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Bridge.Slack.AppToken,
			BotToken:  cfg.Bridge.Slack.BotToken,
			ChannelID: cfg.Bridge.Channel,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Bridge.Discord.BotToken,
			ChannelID: cfg.Bridge.Channel,
		})
	default:
		return nil, fmt.Errorf("bridge: unsupported platform %q", cfg.Bridge.Platform)
	}
}
