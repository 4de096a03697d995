// Package bot serves the /bot slash command on Discord.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/efebarandurmaz/gloombot/internal/observability"
	"github.com/efebarandurmaz/gloombot/internal/query"
)

const (
	CommandName        = "bot"
	CommandDescription = "Enter your query:)"
	OptionName         = "input_text"
	OptionDescription  = "input text"
)

// Command returns the application command definition registered with Discord.
func Command() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        CommandName,
		Description: CommandDescription,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptionName,
			Description: OptionDescription,
			Required:    true,
		}},
	}
}

// FormatReply renders the follow-up message for a question and its answer.
func FormatReply(input, answer string) string {
	return fmt.Sprintf("**Input Query**: %s\n\n%s", input, answer)
}

// Answerer produces an answer for a question. *query.Pipeline satisfies it.
type Answerer interface {
	Answer(ctx context.Context, input string) (string, error)
}

// responder is the part of *discordgo.Session the handler talks to.
type responder interface {
	InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Handler answers /bot interactions.
type Handler struct {
	answerer Answerer
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewHandler creates a Handler. timeout bounds each command; zero means no
// bound beyond the parent context.
func NewHandler(answerer Answerer, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{answerer: answerer, timeout: timeout, logger: logger}
}

// WithMetrics counts handled commands on m.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

// Handle acknowledges the interaction with a deferred response, computes the
// answer and posts it as a follow-up. Interactions for other commands are
// ignored. When the answer cannot be computed nothing is posted.
func (h *Handler) Handle(ctx context.Context, r responder, i *discordgo.Interaction) error {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Name != CommandName {
		return nil
	}
	input := inputText(data)

	ctx, span := observability.StartCommandSpan(ctx, CommandName, i.GuildID)
	defer span.End()

	logger := h.logger.With("command", CommandName, "interaction", i.ID, "user", userID(i))

	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		observability.RecordError(span, err)
		logger.Error("defer response", "error", err)
		return fmt.Errorf("defer response: %w", err)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := h.answerer.Answer(ctx, input)
	if err != nil {
		observability.RecordError(span, err)
		h.metrics.RecordCommand(CommandName, observability.OutcomeError, time.Since(start))
		logger.Error("answer failed", "error", err, "input", input)
		return fmt.Errorf("answer: %w", err)
	}

	_, err = r.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: FormatReply(input, answer)})
	if err != nil {
		observability.RecordError(span, err)
		h.metrics.RecordCommand(CommandName, observability.OutcomeError, time.Since(start))
		logger.Error("send follow-up", "error", err)
		return fmt.Errorf("send follow-up: %w", err)
	}

	outcome := observability.OutcomeAnswered
	if answer == query.FallbackAnswer {
		outcome = observability.OutcomeFallback
	}
	h.metrics.RecordCommand(CommandName, outcome, time.Since(start))
	logger.Info("answered", "outcome", outcome, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func inputText(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == OptionName && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func userID(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}
