// Package llm answers caller questions through a generative language
// capability.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const maxTokensToSample = 4000

type BedrockLanguageModel struct {
	client  *bedrockruntime.Client
	modelID string
}

func NewBedrockLanguageModel(
	client *bedrockruntime.Client,
	modelID string,
) *BedrockLanguageModel {
	return &BedrockLanguageModel{client: client, modelID: modelID}
}

type bedrockRequest struct {
	Prompt            string `json:"prompt"`
	MaxTokensToSample int    `json:"max_tokens_to_sample"`
}

type bedrockResponse struct {
	Completion string `json:"completion"`
}

func (m *BedrockLanguageModel) Complete(
	ctx context.Context,
	prompt string,
) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		Prompt:            prompt,
		MaxTokensToSample: maxTokensToSample,
	})
	if err != nil {
		return "", fmt.Errorf("marshal model request: %w", err)
	}

	out, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(out.Body, &response); err != nil {
		return "", fmt.Errorf("unmarshal model response: %w", err)
	}

	return response.Completion, nil
}
