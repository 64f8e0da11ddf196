package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const analyzeInstruction = `Describe this advertisement reference image for an image generation model.
Cover composition, subject placement, background, lighting, color palette, typography and mood.
Answer in plain prose, at most 120 words.`

// PromptInput is what BuildPrompt folds into a final generation prompt.
type PromptInput struct {
	BasePrompt       string
	Description      string
	UserInstructions string
	AspectRatio      string
	Locale           string
}

// BuiltPrompt is the structured answer requested from Gemini.
type BuiltPrompt struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

// AnalyzeImage downloads imageURL and asks Gemini for a structured description.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL string) (string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return "", fmt.Errorf("genai: image url is required")
	}
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	inline, err := c.downloadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}
	text, err := c.generateText(ctx, []geminiPart{
		{Text: analyzeInstruction},
		{InlineData: inline},
	}, "")
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("model", c.model).Int("chars", len(text)).Msg("genai: analyzed reference image")
	return text, nil
}

// BuildPrompt asks Gemini to merge the reference description and the user's
// instructions into one prompt, and to pick an aspect ratio.
func (c *Client) BuildPrompt(ctx context.Context, in PromptInput) (BuiltPrompt, error) {
	text, err := c.generateText(ctx, []geminiPart{{Text: buildPromptInstruction(in)}}, "application/json")
	if err != nil {
		return BuiltPrompt{}, err
	}
	var out BuiltPrompt
	if err := json.Unmarshal([]byte(stripFence(text)), &out); err != nil {
		return BuiltPrompt{}, fmt.Errorf("decode built prompt: %w", err)
	}
	out.Prompt = strings.TrimSpace(out.Prompt)
	out.AspectRatio = strings.TrimSpace(out.AspectRatio)
	if out.Prompt == "" {
		return BuiltPrompt{}, fmt.Errorf("genai: built prompt is empty")
	}
	if !validAspect(out.AspectRatio) {
		out.AspectRatio = in.AspectRatio
	}
	return out, nil
}

func buildPromptInstruction(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You write prompts for an advertising image generator.\n")
	b.WriteString("Return JSON {\"prompt\": string, \"aspectRatio\": one of \"1:1\",\"4:5\",\"9:16\",\"16:9\",\"3:2\"}.\n")
	if v := strings.TrimSpace(in.BasePrompt); v != "" {
		b.WriteString("Base prompt: ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		b.WriteString("Reference image description: ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := strings.TrimSpace(in.UserInstructions); v != "" {
		b.WriteString("User instructions: ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := strings.TrimSpace(in.AspectRatio); v != "" {
		b.WriteString("Requested aspect ratio: ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := strings.TrimSpace(in.Locale); v != "" {
		b.WriteString("Audience locale: ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return b.String()
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func validAspect(v string) bool {
	switch v {
	case "1:1", "4:5", "9:16", "16:9", "3:2":
		return true
	}
	return false
}
