package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/detect"
	"github.com/caseflow/caseflow-backend/internal/assistant/session"
)

const detectionPrompt = "You review consulting conversations. Decide whether the " +
	"following exchange contains concrete, extractable requirements (features, " +
	"constraints, deliverables). Respond with a JSON object: " +
	`{"recommendation": bool, "candidate_count": int, "summary": string}. ` +
	"candidate_count is how many distinct requirements you can identify; summary " +
	"is one sentence describing them."

// DetectionService answers requirement-detection queries using a single
// non-streaming model call.
type DetectionService struct {
	client *openai.Client
	model  string
	log    *logrus.Entry
}

// NewDetectionService creates a detection service.
func NewDetectionService(client *openai.Client, model string, log *logrus.Entry) *DetectionService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DetectionService{client: client, model: model, log: log}
}

// Analyze scores the sampled messages for extractable requirements.
func (d *DetectionService) Analyze(ctx context.Context, messages []session.Message) (*detect.Result, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("detection model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("detection model returned no choices")
	}

	var result detect.Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("decoding detection answer: %w", err)
	}
	return &result, nil
}
