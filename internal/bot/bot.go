package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Config configures the Discord front end.
type Config struct {
	Token   string
	GuildID string // register the command in one guild only; empty registers globally
}

// Bot owns the Discord gateway session.
type Bot struct {
	session *discordgo.Session
	handler *Handler
	guildID string
	onReady func()
	logger  *slog.Logger
}

// New creates a Bot. onReady, when set, runs after the command is registered.
func New(cfg Config, handler *Handler, onReady func(), logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session: session,
		handler: handler,
		guildID: cfg.GuildID,
		onReady: onReady,
		logger:  logger,
	}, nil
}

// Run connects to the gateway and serves interactions until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.ready(s, r)
	})
	b.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		_ = b.handler.Handle(ctx, s, ic.Interaction)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}

	<-ctx.Done()
	return nil
}

// Connected reports whether the gateway session has received Ready.
func (b *Bot) Connected() bool {
	b.session.RLock()
	defer b.session.RUnlock()
	return b.session.DataReady
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	_, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, []*discordgo.ApplicationCommand{Command()})
	if err != nil {
		b.logger.Error("register commands", "error", err)
		return
	}
	b.logger.Info("gloombot is running", "user", r.User.Username, "guild", b.guildID)
	if b.onReady != nil {
		b.onReady()
	}
}
