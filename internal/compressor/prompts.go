package compressor

import "strings"

// initialSummaryPrompt instructs the model to produce the first compression
// summary. {file_tracking_section} is replaced with the cumulative
// read/modified file XML.
const initialSummaryPrompt = `You are summarizing an agent conversation so it can continue in a fresh context window. Produce exactly one <summary>...</summary> block and nothing else.

Inside the block include these sections, in this order:

1. Primary Request and Intent: what the user originally asked for and every refinement since, in enough detail to resume without the transcript.
2. Key Technical Concepts: technologies, APIs, formats and domain ideas in play.
3. Files and Code Sections: every file read or changed, with the important excerpts or decisions tied to each.
4. Problem Solving: problems hit, how they were resolved, and anything still being debugged.
5. All User Messages: every user message so far, numbered, verbatim, excluding tool results.
6. Current State: precisely what was being worked on at the cutoff.
7. Pending Tasks: what remains, in priority order.

Be thorough. Losing detail here loses it permanently.

{file_tracking_section}`

// updateSummaryPrompt extends a previous summary with new conversation
// content. {previous_summary} and {file_tracking_section} are replaced.
const updateSummaryPrompt = `You are updating an existing conversation summary with new activity. The previous summary is below; after it comes a transcript of everything that happened since.

Previous summary:
{previous_summary}

Produce exactly one updated <summary>...</summary> block. Rules:
- Preserve all content from the previous summary; never drop sections or entries.
- Fold the new activity into the matching sections.
- Append new user messages to "All User Messages", keeping the numbering.
- Rewrite "Current State" and "Pending Tasks" to reflect the situation after the new activity.
- Keep the same section structure and order.

{file_tracking_section}`

// turnPrefixPrompt summarizes the early part of a single oversized turn whose
// suffix is kept verbatim.
const turnPrefixPrompt = `You are summarizing the beginning of an in-progress agent turn. The rest of the turn will be kept verbatim, so cover only what the transcript below shows.

Include these sections:

1. Original Request: what this turn set out to do.
2. Early Progress: what was attempted and what was produced before the cutoff.
3. Context for Suffix: anything the remaining messages depend on (identifiers, paths, partial results).

Be concise but keep every fact the rest of the turn may rely on.`

// Continuation framing around the summary in the rebuilt working context.
const (
	continuationPrefix = "This session is being continued from a previous conversation that ran out of context. The summary below covers the earlier portion of the conversation."

	continuationSuffix = "Please continue the conversation from where it left off without asking the user any further questions. Continue with the last task that you were asked to work on."

	// acknowledgmentText keeps user/assistant alternation intact when the
	// retained recent messages start with a user message.
	acknowledgmentText = "I understand the context. Let me continue from where we left off."
)

func renderInitialPrompt(fileTracking string) string {
	return strings.ReplaceAll(initialSummaryPrompt, "{file_tracking_section}", fileTracking)
}

func renderUpdatePrompt(previousSummary, fileTracking string) string {
	out := strings.ReplaceAll(updateSummaryPrompt, "{previous_summary}", previousSummary)
	return strings.ReplaceAll(out, "{file_tracking_section}", fileTracking)
}
