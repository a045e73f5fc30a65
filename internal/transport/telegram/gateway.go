package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quizward/quizward/internal/app"
	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/round"
)

// Gateway delivers rounds as Telegram quiz polls and feeds poll answers back
// into the game service. It implements app.Dispatcher.
type Gateway struct {
	api     *tgbotapi.BotAPI
	service *app.GameService

	mu         sync.Mutex
	pollRounds map[string]string // telegram poll id -> round id
}

func NewGateway(token string, service *app.GameService) (*Gateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		api:        api,
		service:    service,
		pollRounds: make(map[string]string),
	}, nil
}

// DeliverRound sends the round to every recipient. A recipient that cannot
// be reached is logged and skipped; one bad chat never aborts the batch.
func (g *Gateway) DeliverRound(ctx context.Context, r *round.Round) error {
	for _, chatID := range r.RecipientIDs {
		poll := tgbotapi.NewPoll(chatID, r.Prompt, r.ShuffledOptions...)
		poll.Type = "quiz"
		poll.CorrectOptionID = int64(r.CorrectIndex)
		poll.IsAnonymous = false

		msg, err := g.api.Send(poll)
		if err != nil {
			log.Printf("deliver round %s to %d: %v", r.ID, chatID, err)
			continue
		}
		if msg.Poll != nil {
			g.mu.Lock()
			g.pollRounds[msg.Poll.ID] = r.ID
			g.mu.Unlock()
		}
	}
	return nil
}

// Notify sends a plain text message to one participant.
func (g *Gateway) Notify(_ context.Context, participantID int64, text string) error {
	_, err := g.api.Send(tgbotapi.NewMessage(participantID, text))
	return err
}

// Run consumes Telegram updates until the context is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	log.Printf("telegram gateway running as @%s", g.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := g.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			g.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.handleUpdate(ctx, update)
		}
	}
}

func (g *Gateway) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.PollAnswer != nil {
		g.handlePollAnswer(ctx, update.PollAnswer)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	chatID := update.Message.Chat.ID
	from := update.Message.From
	actorID := commandActor(update.Message)

	switch update.Message.Command() {
	case "start":
		name := ""
		if from != nil {
			name = from.FirstName
			if name == "" {
				name = from.UserName
			}
		}
		_, created, err := g.service.Register(ctx, actorID, name)
		if err != nil {
			g.reply(chatID, "Registration failed, please try again later.")
			return
		}
		if created {
			g.reply(chatID, "Welcome to the quiz! You are registered and will receive questions automatically. Use /quiz for one right now.")
		} else {
			g.reply(chatID, "You are already registered. Use /quiz for an immediate question.")
		}
	case "quiz":
		r, err := g.service.OpenRoundFor(ctx, actorID)
		switch {
		case errors.Is(err, domain.ErrParticipantNotFound):
			g.reply(chatID, "Use /start first to register.")
		case errors.Is(err, domain.ErrEmptyBank):
			g.reply(chatID, "No questions configured yet.")
		case err != nil:
			log.Printf("open round for %d: %v", chatID, err)
			g.reply(chatID, "Something went wrong, try again later.")
		default:
			if err := g.DeliverRound(ctx, r); err != nil {
				log.Printf("deliver direct round: %v", err)
			}
		}
	case "leaderboard":
		lb, err := g.service.Leaderboard(ctx)
		if err != nil {
			log.Printf("leaderboard for %d: %v", chatID, err)
			return
		}
		g.reply(chatID, formatLeaderboard(lb, 10))
	case "addquestion":
		g.handleAddQuestion(ctx, chatID, actorID, update.Message.CommandArguments())
	case "delquestion":
		id := strings.TrimSpace(update.Message.CommandArguments())
		err := g.service.RemoveQuestion(ctx, actorID, id)
		switch {
		case errors.Is(err, domain.ErrNotAuthorized):
			g.reply(chatID, "Only the admin can manage questions.")
		case errors.Is(err, domain.ErrQuestionNotFound):
			g.reply(chatID, "No question with that id.")
		case err != nil:
			g.reply(chatID, "Could not delete the question.")
		default:
			g.reply(chatID, "Question "+id+" deleted.")
		}
	default:
		g.reply(chatID, "Unknown command. Try /quiz or /leaderboard.")
	}
}

func (g *Gateway) handleAddQuestion(ctx context.Context, chatID, actorID int64, args string) {
	q, err := ParseQuestion(args)
	if err != nil {
		g.reply(chatID, "Format: /addquestion prompt | option1; option2; ... | correct index (0-based)")
		return
	}
	added, err := g.service.AddQuestion(ctx, actorID, q)
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		g.reply(chatID, "Only the admin can manage questions.")
	case errors.Is(err, domain.ErrInvalidQuestion):
		g.reply(chatID, "A question needs 2-10 options and a valid correct index.")
	case err != nil:
		log.Printf("add question: %v", err)
		g.reply(chatID, "Could not save the question.")
	default:
		g.reply(chatID, fmt.Sprintf("Question %s added with %d options.", added.ID, len(added.Options)))
	}
}

func (g *Gateway) handlePollAnswer(ctx context.Context, answer *tgbotapi.PollAnswer) {
	g.mu.Lock()
	roundID, ok := g.pollRounds[answer.PollID]
	g.mu.Unlock()
	if !ok || len(answer.OptionIDs) == 0 {
		return
	}

	participantID := answer.User.ID
	result, err := g.service.HandleAnswer(ctx, roundID, participantID, answer.OptionIDs[0])
	if err != nil {
		log.Printf("handle answer from %d: %v", participantID, err)
		return
	}

	switch result.Outcome {
	case domain.OutcomeCorrect:
		text := fmt.Sprintf("✅ Correct! +%d points", result.Award.Points)
		if result.Award.StreakBonus {
			text += " (streak bonus!)"
		}
		text += fmt.Sprintf("\n⭐ Points: %d\n🏅 Level: %d", result.State.Points, result.State.Level)
		g.reply(participantID, text)
	case domain.OutcomeIncorrect:
		g.reply(participantID, fmt.Sprintf("❌ Wrong! The answer was: %s\n⭐ Points: %d\n🏅 Level: %d",
			result.CorrectOption, result.State.Points, result.State.Level))
	default:
		// Duplicate or expired: stay silent.
	}
}

func (g *Gateway) reply(chatID int64, text string) {
	if _, err := g.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("send to %d: %v", chatID, err)
	}
}

// commandActor identifies the participant behind a command. Poll answers
// arrive keyed by user id, so commands must use the same identity even in
// group chats where the chat id differs from the sender's.
func commandActor(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

// ParseQuestion parses the admin command form
// "prompt | option1; option2; ... | correctIndex".
func ParseQuestion(args string) (domain.Question, error) {
	parts := strings.Split(args, "|")
	if len(parts) != 3 {
		return domain.Question{}, fmt.Errorf("expected 3 segments, got %d", len(parts))
	}
	prompt := strings.TrimSpace(parts[0])
	if prompt == "" {
		return domain.Question{}, fmt.Errorf("empty prompt")
	}

	var options []string
	for _, opt := range strings.Split(parts[1], ";") {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}

	var correct int
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[2]), "%d", &correct); err != nil {
		return domain.Question{}, fmt.Errorf("correct index: %w", err)
	}

	q := domain.Question{Prompt: prompt, Options: options, CorrectIndex: correct}
	if !q.Valid() {
		return domain.Question{}, domain.ErrInvalidQuestion
	}
	return q, nil
}

func formatLeaderboard(lb domain.Leaderboard, limit int) string {
	if len(lb.Entries) == 0 {
		return "🏆 Leaderboard\n\nNo scores yet. Be the first!"
	}
	var b strings.Builder
	b.WriteString("🏆 Top players\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, e := range lb.Entries {
		if i >= limit {
			break
		}
		medal := "🔸"
		if i < len(medals) {
			medal = medals[i]
		}
		fmt.Fprintf(&b, "%s %d. %s — %d points (level %d)\n", medal, i+1, e.DisplayName, e.Points, e.Level)
	}
	return b.String()
}
