package judge

import (
	"fmt"
	"strings"

	"github.com/siherrmann/briefings/model"
)

const systemPrompt = "You judge relevance and only reply with JSON that matches the request."

const instructions = `You are a precise relevance judge. For each chunk determine if it directly helps answer the query.
Respond with a JSON object {"answers": [...]} whose array has one entry per chunk, in the same order as the chunks.
Each array entry must be an object with:
{"answer":"YES" or "NO","explanation":"short reason"}
Only answer YES when the chunk is clearly helpful. If the chunk is clearly helpful, additionally state what part of the query it relates to.
Keep in mind that if the query is nonsense, then nothing should be helpful to answering the query.`

// trimWords shortens text to maxWords whitespace separated words and marks
// the cut with "...". Whitespace inside the kept words is normalised.
func trimWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// buildPrompt numbers the chunks from 1 within the batch.
func buildPrompt(query string, batch []model.SearchCandidate, maxWords int) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nQuery:\n")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nChunks:\n")

	for i, c := range batch {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		published := "Unknown"
		if c.PublishDate != nil {
			published = c.PublishDate.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "Chunk %d (title: %s, date: %s):\n%s", i+1, title, published, trimWords(c.Text, maxWords))
	}

	return sb.String()
}
