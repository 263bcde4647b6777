package ai

// Model variant names accepted in chat requests.
const (
	VariantChat      = "chat-model"
	VariantReasoning = "chat-model-reasoning"
)

const regularPrompt = "You are a friendly assistant. Keep your responses concise and helpful."

const toolsPrompt = regularPrompt + `

You have access to tools for looking up the weather, creating and updating
documents, and requesting suggestions on a document. Use a tool only when the
user's request needs it; answer directly otherwise. When you create or update
a document, tell the user what you did and include the document id.`

// SystemPrompt returns the system prompt for the requested model variant.
// Reasoning variants run without tools, so they get the plain prompt.
func SystemPrompt(variant string) string {
	if variant == VariantReasoning {
		return regularPrompt
	}
	return toolsPrompt
}
