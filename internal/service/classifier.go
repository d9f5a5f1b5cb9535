package service

import (
	"context"
	"fmt"

	"github.com/mudler/xlog"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/domain"
)

// classify labels a message against the closed intent set. Labels outside the
// set, confidence below the threshold, and classifier failures all collapse to
// IntentUnknown so the turn proceeds on the fallback path instead of failing.
func (s *Service) classify(ctx context.Context, message string, history []llm.Turn) domain.Intent {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	result, err := s.llm.Classify(ctx, message, history)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
		xlog.Warn("Treating intent as unknown", "error", err.Error())
		return domain.IntentUnknown
	}

	intent := domain.Intent(result.Label)
	if !intent.Valid() {
		xlog.Warn("Classifier returned unrecognized label", "label", result.Label)
		return domain.IntentUnknown
	}
	if result.Confidence < s.cfg.ClassifierThreshold {
		return domain.IntentUnknown
	}
	return intent
}

// historyTurns converts the most recent stored messages into classifier and
// generation context, bounded by the configured window.
func (s *Service) historyTurns(msgs []domain.Message) []llm.Turn {
	window := s.cfg.HistoryWindow
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, llm.Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}
