package history

import (
	"context"
	"fmt"
	"strings"

	"meetingd/internal/llm"
	"meetingd/internal/logging"
	"meetingd/internal/metrics"
	"meetingd/internal/session"
)

// Default prompts.
const (
	DefaultSummaryPrompt = "please provide a concise summary of the following meeting transcript"

	DefaultParticipantsPrompt = "please identify the participants in this meeting transcript. " +
		"provide a comma-separated list of one or two word names or roles or characteristics. " +
		"if it's not possible to identify, respond with n/a."

	summarySystemPrompt = "you are a helpful assistant that summarizes meetings."

	participantsSystemPrompt = "you are an assistant that identifies participants in meeting transcripts. " +
		"your goal is to provide a list of one or two or more word names or roles or characteristics.\n\n" +
		"for example your response could be:\n" +
		"Bob Smith (marketing), John Doe (sales), Jane Smith (ceo)"

	// NoParticipants is stored when the model returns nothing.
	NoParticipants = "no participants identified."
)

// Completer generates text from chat messages.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	Stream(ctx context.Context, messages []llm.Message, onDelta func(string)) (string, error)
}

// Prompts are the user-editable instructions sent with each request.
type Prompts struct {
	Summary      string
	Participants string
}

// Enricher adds generated summaries, participant lists and names to
// persisted sessions.
type Enricher struct {
	repo    *Repository
	llm     Completer
	prompts Prompts
	logger  *logging.Logger
	metrics *metrics.Set
}

// NewEnricher creates an Enricher. Empty prompts select the defaults.
func NewEnricher(repo *Repository, completer Completer, prompts Prompts, logger *logging.Logger, m *metrics.Set) *Enricher {
	if prompts.Summary == "" {
		prompts.Summary = DefaultSummaryPrompt
	}
	if prompts.Participants == "" {
		prompts.Participants = DefaultParticipantsPrompt
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Enricher{
		repo:    repo,
		llm:     completer,
		prompts: prompts,
		logger:  logger.WithComponent("history"),
		metrics: m,
	}
}

func summaryMessages(s session.Session, prompt string) []llm.Message {
	if s.Participants != "" {
		prompt += "\n\nparticipants: " + s.Participants
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: prompt + ":\n\n" + s.Transcript},
	}
}

func participantsMessages(s session.Session, prompt string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: participantsSystemPrompt},
		{Role: llm.RoleUser, Content: prompt + "\n\ntranscript with device types:\n\n" + s.Transcript},
	}
}

// Summarize streams a summary of session id to onDelta and stores it. If
// the summary cannot be stored it is returned with a *StorageDegradedError.
func (e *Enricher) Summarize(ctx context.Context, id string, onDelta func(string)) (session.Session, error) {
	s, err := e.repo.Get(ctx, id)
	if err != nil {
		return session.Session{}, err
	}

	summary, err := e.llm.Stream(ctx, summaryMessages(s, e.prompts.Summary), onDelta)
	if err != nil {
		return session.Session{}, fmt.Errorf("summarize %s: %w", s.ID, err)
	}

	updated, err := e.store(ctx, s.ID, func(s *session.Session) { s.Summary = summary })
	if updated.ID == "" {
		s.Summary = summary
		updated = s
	}
	return updated, err
}

// IdentifyParticipants asks the model who took part in session id and
// stores the answer.
func (e *Enricher) IdentifyParticipants(ctx context.Context, id string) (session.Session, error) {
	s, err := e.repo.Get(ctx, id)
	if err != nil {
		return session.Session{}, err
	}

	answer, err := e.llm.Complete(ctx, participantsMessages(s, e.prompts.Participants))
	if err != nil {
		return session.Session{}, fmt.Errorf("identify participants %s: %w", s.ID, err)
	}
	participants := strings.TrimSpace(answer)
	if participants == "" {
		participants = NoParticipants
	}

	updated, err := e.store(ctx, s.ID, func(s *session.Session) { s.Participants = participants })
	if updated.ID == "" {
		s.Participants = participants
		updated = s
	}
	return updated, err
}

// Rename sets the display name of session id.
func (e *Enricher) Rename(ctx context.Context, id, name string) (session.Session, error) {
	name = strings.TrimSpace(name)
	return e.store(ctx, id, func(s *session.Session) { s.Name = name })
}

func (e *Enricher) store(ctx context.Context, id string, fn func(*session.Session)) (session.Session, error) {
	updated, err := e.repo.Modify(ctx, id, fn)
	if IsStorageDegraded(err) {
		e.metrics.StorageDegraded.Inc()
		e.logger.Warn("enrichment generated but not saved", "session", id, "error", err)
	}
	return updated, err
}
