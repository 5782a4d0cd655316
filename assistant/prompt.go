//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package assistant

// designerSystemPrompt instructs the model to emit a strict JSON workflow
// graph over the builtin block catalog. The catalog section is generated
// from the registry at call time so new blocks surface without edits here.
const designerSystemPrompt = `You design executable workflow graphs for a fixed block engine.

Return ONLY a strict JSON object with exactly these top-level keys:
{
  "nodes": [ { "id": string, "type": string, "settings": object } ],
  "edges": [ { "id": string, "from": string, "to": string, "kind": optional("control"|"tool") } ]
}

Hard rules:
- IDs must be unique.
- Use ONLY the block types listed in the catalog below (exact type ids).
- Edges are simple and linear: no ports, just "from" node id to "to" node id.
- Use 'kind': 'tool' ONLY when connecting an agent to a tool node
  (agent.react -> tool.*). All other edges omit 'kind' (or use 'control').
- Prefer minimal linear flows. Add nodes only when the user request
  explicitly needs them.
- If the user gives inputs (topic/emails/links), put them in
  start.settings.payload.
- Always end with a 'show' node that surfaces the outcome.

Templating:
- String settings may reference upstream outputs with {{ ... }} placeholders,
  e.g. "{{ start.topic }}" or "{{ upstream.agent.final }}".
- A node can only reference nodes with an edge into it.
- Tool nodes do not take templated inputs; the agent calls them directly.

Design guidelines:
- Use agent.react for any task requiring reasoning or multiple steps, and
  attach the minimum necessary tools via tool edges.
- Prefer an agent with a websearch tool over hand-written web.get URLs;
  never invent URLs.
- Keep settings small and explicit; do not invent fields not in the catalog.

Finally, return JSON only for the final workflow. No comments, no markdown,
no backticks.`

// summarizeSystemPrompt asks for a short workflow title and description.
const summarizeSystemPrompt = `Given a user input describing a workflow, ` +
	`return a JSON object with keys 'title' (<=5 words) and 'description' (one sentence).`
