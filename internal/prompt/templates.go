package prompt

import (
	"regexp"
	"strings"

	"github.com/ragline/ragline/internal/model"
)

// Template pairs the system instruction with the user message skeleton for
// one domain. The user skeleton carries {context} and {question} slots.
type Template struct {
	System string
	User   string
}

// Prompt is a fully rendered request ready for the generation gateway.
type Prompt struct {
	System string
	User   string
}

// Render flattens the prompt for gateways that take a single text block,
// system instruction first.
func (p Prompt) Render() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

const generalDomain = "general"

var domainTemplates = map[string]Template{
	"legal": {
		System: "You are a legal document assistant. Provide precise, citation-based answers.\n" +
			"Always reference specific sections or clauses. Use formal legal terminology.\n" +
			"Be concise. Provide a high-level summary rather than an exhaustive research-style answer.\n" +
			"If uncertain, state limitations clearly.",
		User: "Based on the following legal documents:\n\n{context}\n\n" +
			"Question: {question}\n\nProvide a concise answer with specific citations.",
	},
	"hr": {
		System: "You are an HR policy assistant. Provide clear, empathetic guidance.\n" +
			"Focus on employee welfare and company policy compliance.\n" +
			"Be concise. Provide a high-level summary rather than an exhaustive research-style answer.\n" +
			"Use accessible language.",
		User: "Based on the following HR policies:\n\n{context}\n\n" +
			"Question: {question}\n\nProvide a helpful, concise answer.",
	},
	"engineering": {
		System: "You are a technical documentation assistant. Provide accurate, actionable guidance.\n" +
			"Be concise. Provide a high-level summary rather than an exhaustive research-style answer.\n" +
			"Include code examples when relevant. Focus on best practices.",
		User: "Based on the following technical documentation:\n\n{context}\n\n" +
			"Question: {question}\n\nProvide a technical, concise answer.",
	},
	generalDomain: {
		System: "You are a helpful assistant. Answer questions based on the provided context.\n" +
			"Be concise. Provide a high-level summary rather than an exhaustive research-style answer.",
		User: "Context:\n\n{context}\n\nQuestion: {question}\n\nAnswer:",
	},
}

// TemplateFor returns the template for the domain, falling back to the
// general template for unknown domains.
func TemplateFor(domain string) Template {
	if tpl, ok := domainTemplates[domain]; ok {
		return tpl
	}
	return domainTemplates[generalDomain]
}

var promptSlotRegex = regexp.MustCompile(`\{(context|question)\}`)

func render(skeleton string, values map[string]string) string {
	return promptSlotRegex.ReplaceAllStringFunc(skeleton, func(token string) string {
		key := strings.Trim(token, "{}")
		if value, ok := values[key]; ok {
			return value
		}
		return token
	})
}

// BuildContext concatenates chunk contents in retrieval order. An empty
// result set renders as an empty context block rather than an error.
func BuildContext(chunks []*model.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		parts = append(parts, ch.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Assemble renders the domain template with the retrieved context and the
// user's question.
func Assemble(domain, question string, chunks []*model.Chunk) Prompt {
	tpl := TemplateFor(domain)
	values := map[string]string{
		"context":  BuildContext(chunks),
		"question": question,
	}
	return Prompt{
		System: tpl.System,
		User:   render(tpl.User, values),
	}
}
