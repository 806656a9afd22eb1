package dto

// ExplainRequest asks for a line-by-line explanation of code.
type ExplainRequest struct {
	ChallengeID          string `json:"challenge_id"`
	Code                 string `json:"code" validate:"required,max=65536"`
	ChallengeDescription string `json:"challenge_description" validate:"max=65536"`
	Language             string `json:"language" validate:"omitempty,max=35"`
}

// AskRequest asks a free-form question about code. Every request is independent.
type AskRequest struct {
	ChallengeID          string `json:"challenge_id"`
	Code                 string `json:"code" validate:"max=65536"`
	ChallengeDescription string `json:"challenge_description" validate:"max=65536"`
	Language             string `json:"language" validate:"omitempty,max=35"`
	Question             string `json:"question" validate:"required,max=4000"`
}

// AssistResponse carries generated text.
type AssistResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TranslateRequest translates a description HTML fragment.
type TranslateRequest struct {
	HTML           string `json:"html" validate:"required,max=65536"`
	TargetLanguage string `json:"target_language" validate:"required,max=35"`
}

// TranslateResponse carries the translated fragment.
type TranslateResponse struct {
	HTML     string `json:"html"`
	Language string `json:"language"`
}
