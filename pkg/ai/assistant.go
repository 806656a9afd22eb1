package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question must not be empty")

// DefaultResponseLanguage is used when the caller does not name one.
const DefaultResponseLanguage = "Spanish"

// assistSafety blocks harassment from medium likelihood and the remaining
// categories from low likelihood, for an audience of unknown learners.
var assistSafety = []SafetySetting{
	{Category: HarmCategoryHarassment, Threshold: BlockMediumAndAbove},
	{Category: HarmCategoryHate, Threshold: BlockLowAndAbove},
	{Category: HarmCategorySexual, Threshold: BlockLowAndAbove},
	{Category: HarmCategoryDangerous, Threshold: BlockLowAndAbove},
}

// CodeContext is the material sent along with explain and ask requests.
type CodeContext struct {
	Code                 string
	ChallengeDescription string
	Language             string
}

type promptPayload struct {
	Code                 string `yaml:"code"`
	ChallengeDescription string `yaml:"challengeDescription"`
	UserLanguage         string `yaml:"userLanguage"`
	UserQuestion         string `yaml:"userQuestion,omitempty"`
}

// Assistant turns playground requests into provider calls.
type Assistant struct {
	provider Provider
	model    string
	text     *bluemonday.Policy
	html     *bluemonday.Policy
}

// NewAssistant wraps a provider. An empty model lets the provider pick its default.
func NewAssistant(provider Provider, model string) *Assistant {
	return &Assistant{
		provider: provider,
		model:    model,
		text:     bluemonday.StrictPolicy(),
		html:     bluemonday.UGCPolicy(),
	}
}

// Explain narrates the executable statements of the code line by line.
func (a *Assistant) Explain(ctx context.Context, in CodeContext) (string, error) {
	language := responseLanguage(in.Language)
	content, err := a.encode(in, language, "")
	if err != nil {
		return "", err
	}
	return a.provider.Generate(ctx, a.assistRequest(explainInstruction(language), content))
}

// Ask answers one question about the code. No conversation state is kept.
func (a *Assistant) Ask(ctx context.Context, in CodeContext, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	language := responseLanguage(in.Language)
	content, err := a.encode(in, language, question)
	if err != nil {
		return "", err
	}
	return a.provider.Generate(ctx, a.assistRequest(askInstruction(language), content))
}

// Translate translates the text nodes of an HTML fragment, rejecting results
// whose tag sequence differs from the input.
func (a *Assistant) Translate(ctx context.Context, fragment, targetLanguage string) (string, error) {
	text, err := a.provider.Generate(ctx, GenerateRequest{
		Model:             a.model,
		Temperature:       0.2,
		SystemInstruction: translateInstruction(targetLanguage),
		Content:           fragment,
	})
	if err != nil {
		return "", err
	}

	translated := stripCodeFence(text)
	if !SameStructure(fragment, translated) {
		return "", ErrStructureMismatch
	}
	return a.html.Sanitize(translated), nil
}

func (a *Assistant) assistRequest(instruction, content string) GenerateRequest {
	return GenerateRequest{
		Model:             a.model,
		Temperature:       0.4,
		TopP:              0.85,
		MaxOutputTokens:   1200,
		Safety:            assistSafety,
		SystemInstruction: instruction,
		Content:           content,
	}
}

func (a *Assistant) encode(in CodeContext, language, question string) (string, error) {
	payload := promptPayload{
		Code:                 in.Code,
		ChallengeDescription: strings.TrimSpace(a.text.Sanitize(in.ChallengeDescription)),
		UserLanguage:         language,
		UserQuestion:         question,
	}
	encoded, err := yaml.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode prompt payload: %w", err)
	}
	return string(encoded), nil
}

func responseLanguage(language string) string {
	if strings.TrimSpace(language) == "" {
		return DefaultResponseLanguage
	}
	return strings.TrimSpace(language)
}

func explainInstruction(language string) string {
	return "Explain the code line by line, describing how the interpreter processes each executable statement in order. " +
		"Ignore every comment in the code and never mention them, because the interpreter skips them. " +
		"Narrate only what happens when each line of executable code runs, in friendly language that helps the learner " +
		"think like the interpreter and understand the syntax. Respond in " + language + "."
}

func askInstruction(language string) string {
	return "You are an expert coding assistant. Answer the learner's question about the provided code. Respond in " + language + "."
}

func translateInstruction(language string) string {
	return "You are a technical translator. The input is HTML markup. Translate only the text content to " + language +
		" and keep every HTML tag exactly as it appears (<p>, <ul>, <li>, <code>, <strong> and so on). " +
		"Do not convert HTML to markdown and do not add asterisks or numbered lists. " +
		"Leave code snippets, function names and variable names untranslated. " +
		"Return only the HTML with translated text and an identical structure."
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
