// Package prompt turns free-form user story text into provider-ready image
// prompts via a language model.
package prompt

import "context"

// Refinement is the interpreter's verdict on one user prompt. Exactly one of
// RefinedPrompt and Feedback is set: a refined English prompt when the text
// could be interpreted, or localized feedback for the user when it could not.
type Refinement struct {
	RefinedPrompt string
	Feedback      string
}

// Rejected reports whether the interpreter judged the input uninterpretable.
func (r *Refinement) Rejected() bool {
	return r != nil && r.Feedback != ""
}

// Refiner interprets user story text into an image prompt.
type Refiner interface {
	Refine(ctx context.Context, userPrompt, locale string) (*Refinement, error)
}
