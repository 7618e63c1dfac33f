package models

// NoResponse is returned in place of upstream text when the provider yields nothing.
const NoResponse = "No response"

// ChatRequest is the JSON body of the prompt endpoint. Prompt is a pointer so a
// missing field can be told apart from an empty one.
type ChatRequest struct {
	Prompt *string `json:"prompt"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

// ValidationError mirrors the 422 body web frameworks return for bad input.
type ValidationError struct {
	Detail []ValidationErrorDetail `json:"detail"`
}

type ValidationErrorDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}
