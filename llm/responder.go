package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

const promptTemplate = "\n\nHuman: This is a question from a caller. " +
	"In a few sentences provide an answer to this question.\n\n%s\n\nAssistant:"

// Responder turns one finalized utterance into a plain-language answer,
// shaped for speech synthesis. Stateless: each answer stands alone.
type Responder struct {
	model LanguageModel
	log   *log.Logger
}

func NewResponder(model LanguageModel, logger *log.Logger) *Responder {
	return &Responder{model: model, log: logger}
}

func (r *Responder) Answer(
	ctx context.Context,
	question string,
) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, question)

	completion, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	answer := sanitizeForSpeech(completion)
	r.log.Info("talk", "txt", answer)

	return answer, nil
}

// sanitizeForSpeech strips characters with known synthesis artifacts:
// straight apostrophes and colons confuse the voice engine's SSML handling,
// and newlines read as long pauses.
func sanitizeForSpeech(text string) string {
	text = strings.ReplaceAll(text, "'", "’")
	text = strings.ReplaceAll(text, ":", ".")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.Join(strings.Fields(text), " ")
}
