package ads

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
)

var templateToken = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// RenderTemplate replaces every {{key}} token with vars[key]. Tokens without
// a value are kept verbatim.
func RenderTemplate(tmpl string, vars map[string]string) string {
	return templateToken.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := templateToken.FindStringSubmatch(token)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return token
	})
}

// PromptVariables exposes product fields and request hints to templates under
// both camelCase and snake_case keys.
func PromptVariables(product *domain.Product, req SubmitRequest) map[string]string {
	vars := map[string]string{}
	set := func(camel, snake, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		vars[camel] = value
		vars[snake] = value
	}
	if product != nil {
		title := cases.Title(language.Und)
		set("productName", "product_name", product.Name)
		set("productDescription", "product_description", product.Description)
		set("brand", "brand", product.Brand)
		set("category", "category", title.String(product.Category))
		set("price", "price", product.Price)
	}
	set("style", "style", req.Style)
	set("colors", "colors", strings.Join(req.Colors, ", "))
	set("aspectRatio", "aspect_ratio", req.AspectRatio)
	set("instructions", "instructions", req.UserInstructions)
	return vars
}

const defaultProductPrompt = "Professional advertisement photo of {{productName}}"

// AssemblePrompt builds the final prompt from the template, the product and
// the user's own text.
func AssemblePrompt(tmpl *domain.Template, product *domain.Product, req SubmitRequest) string {
	vars := PromptVariables(product, req)
	var parts []string
	switch {
	case tmpl != nil && strings.TrimSpace(tmpl.Prompt) != "":
		parts = append(parts, RenderTemplate(tmpl.Prompt, vars))
	case product != nil && strings.TrimSpace(req.Prompt) == "":
		parts = append(parts, RenderTemplate(defaultProductPrompt, vars))
	}
	if p := strings.TrimSpace(RenderTemplate(req.Prompt, vars)); p != "" {
		parts = append(parts, p)
	}
	if s := strings.TrimSpace(req.Style); s != "" {
		parts = append(parts, "Style: "+s)
	}
	if len(req.Colors) > 0 {
		parts = append(parts, "Colors: "+strings.Join(req.Colors, ", "))
	}
	return strings.Join(parts, "\n")
}
