package scorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/techwatch/internal/langdetect"
)

const (
	maxPromptContentRunes = 1500
	defaultRetryBackoff   = 500 * time.Millisecond
)

type ServiceOptions struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries   int
	Timeout      time.Duration
	RetryBackoff time.Duration
	Rubrics      *RubricStore
}

// Service is the Scorer backed by one Provider.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	opts     ServiceOptions
}

func NewService(provider Provider, logger zerolog.Logger, opts ServiceOptions) *Service {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Service{
		provider: provider,
		logger:   logger,
		opts:     opts,
	}
}

func (s *Service) Evaluate(ctx context.Context, req Request) Result {
	if s == nil || s.provider == nil {
		return Failure("scorer is not configured")
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return Failure("item has neither title nor content")
	}

	rubric, err := s.opts.Rubrics.Load(req.Topic)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", req.Topic).Msg("rubric unavailable, using generic guidance")
	}
	prompt := BuildPrompt(req, rubric)

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, time.Duration(attempt)*s.opts.RetryBackoff); err != nil {
				return Failure(fmt.Sprintf("evaluation cancelled: %v", err))
			}
		}

		parsed, err := s.attempt(ctx, prompt)
		if err == nil {
			return Success(parsed.Score, parsed.SummaryShort)
		}
		lastErr = err
		if errors.Is(err, ErrDisabled) || ctx.Err() != nil {
			break
		}
		s.logger.Debug().
			Err(err).
			Str("provider", s.provider.Name()).
			Int("attempt", attempt+1).
			Msg("scorer attempt failed")
	}

	return Failure(fmt.Sprintf("%s: %v", s.provider.Name(), lastErr))
}

func (s *Service) attempt(ctx context.Context, prompt Prompt) (assessment, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	reply, err := s.provider.Complete(attemptCtx, prompt)
	if err != nil {
		return assessment{}, err
	}
	return parseAssessment(reply)
}

// BuildPrompt renders the evaluation prompt for one item. An empty rubric
// falls back to generic relevance guidance.
func BuildPrompt(req Request, rubric string) Prompt {
	topic := strings.ToUpper(strings.TrimSpace(req.Topic))

	var system strings.Builder
	fmt.Fprintf(&system, "You are a senior technical analyst. Your area of expertise is %s.\n", topic)
	if rubric = strings.TrimSpace(rubric); rubric != "" {
		system.WriteString("Evaluate technical news strictly with the following rubric.\n\nRUBRIC:\n")
		system.WriteString(rubric)
		system.WriteString("\n\n")
	} else {
		system.WriteString("Rate the relevance, impact and novelty of the news from 0.0 to 10.0. ")
		system.WriteString("Generic or irrelevant items score lower than critical announcements or severe vulnerabilities.\n\n")
	}
	system.WriteString("Reply with a single JSON object and nothing else: {\"score\": <number 0.0-10.0>, \"summary_short\": \"<two sentences at most>\"}. ")
	system.WriteString("The summary states the main fact directly, with no introductory phrase.")

	content := truncateRunes(strings.TrimSpace(req.Content), maxPromptContentRunes)

	var user strings.Builder
	user.WriteString("Evaluate this news:\n\n")
	fmt.Fprintf(&user, "Title: %s\n", strings.TrimSpace(req.Title))
	if sourceType := strings.TrimSpace(req.SourceType); sourceType != "" {
		fmt.Fprintf(&user, "Source type: %s\n", sourceType)
	}
	if sourceURL := strings.TrimSpace(req.SourceURL); sourceURL != "" {
		fmt.Fprintf(&user, "URL: %s\n", sourceURL)
	}
	fmt.Fprintf(&user, "Content: %s\n", content)
	if language, ok := langdetect.Detect(req.Title + "\n" + content); ok {
		fmt.Fprintf(&user, "\nWrite summary_short in %s.", language.Name)
	}

	return Prompt{System: system.String(), User: user.String()}
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
