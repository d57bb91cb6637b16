package response

import (
	"fmt"
	"slices"
	"strings"

	"github.com/scrypster/rallygraph/pkg/types"
)

// SystemPersona is attached to every language-model call.
const SystemPersona = "I am a knowledge graph assistant that only provides information from the connected graph database. I stay focused on available content and politely decline general conversation."

// Apology is returned when the language model fails.
const Apology = "I apologize, but I encountered an error while generating a response. Please try again."

// ContextPrompt asks for an answer grounded in the rendered context.
func ContextPrompt(query, context string) string {
	return fmt.Sprintf(`Based on the following context from a knowledge graph, help me answer this query: %q

Context information:
%s

Provide a natural, conversational response that:
1. Directly answers the query using only the context provided
2. Highlights key relationships between concepts
3. Suggests related topics to explore if relevant

Response:`, query, context)
}

// OverviewPrompt asks the model to summarize what the store holds.
func OverviewPrompt(query, overview string) string {
	return fmt.Sprintf(`As a knowledge graph assistant, I need to respond to this query: %q

Here's what I found in the knowledge graph:
%s

Provide a helpful response that:
1. Summarizes the types of information available
2. Lists some key topics or entities found
3. Encourages exploring specific areas of interest
4. Stays focused on actual graph contents

Response:`, query, overview)
}

// EmptyStorePrompt asks the model to explain that nothing has been loaded.
func EmptyStorePrompt() string {
	return `The knowledge graph appears to be empty at the moment. Explain that:
1. No documents or entities have been added yet
2. Documents need to be uploaded first
3. Keep the response brief and clear`
}

// NoMatchPrompt asks the model to decline briefly and suggest rephrasing.
func NoMatchPrompt(query string) string {
	return fmt.Sprintf(`As a knowledge graph assistant, I need to respond to this query: %q

No matches were found in the knowledge graph for this query. Respond by:
1. Politely explaining that I can only provide information that exists in the knowledge graph
2. Suggesting the user rephrase or ask about specific skills, drills or documents
3. Avoiding general conversation or topics not present in the graph
4. Keeping the response brief

Response:`, query)
}

// FormatOverview renders an overview as the text given to OverviewPrompt.
func FormatOverview(ov *types.Overview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Documents: %d total\n", ov.DocumentCount)
	if len(ov.SampleTitles) > 0 {
		b.WriteString("Sample documents:\n")
		for _, t := range ov.SampleTitles {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}

	entityTypes := make([]types.EntityType, 0, len(ov.EntityCounts))
	for t, n := range ov.EntityCounts {
		if n > 0 {
			entityTypes = append(entityTypes, t)
		}
	}
	slices.Sort(entityTypes)
	if len(entityTypes) > 0 {
		b.WriteString("\nTopics and concepts found:\n")
		for _, t := range entityTypes {
			fmt.Fprintf(&b, "- %s (%d): %s\n", t, ov.EntityCounts[t], strings.Join(ov.Examples[t], ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
