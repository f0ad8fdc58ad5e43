package mcpserver

// RecordFormat describes the Markdown documents rendered for records so
// that LLM consumers can read them reliably.
const RecordFormat = `# gleaner Record Document Format

Every record is rendered to one Markdown file in the vault, under the
folder of its channel (` + "`" + `<folder>/<id>-<slug>.md` + "`" + `).

## Structure

` + "```" + `markdown
---
id: "007"                           # record ID, zero-padded, never reused
channel: papers                     # chat channel the record came from
kind: paper                         # text | voice | article | paper
created: 2025-01-15T09:30:00Z       # capture time, UTC
title: Attention Is All You Need
source: https://arxiv.org/pdf/...   # article URL or paper document URL
tags:
  - transformers
---

# Attention Is All You Need

> **Record 007** · #papers · Paper · 2025-01-15 09:30 UTC

## Summary
...
` + "```" + `

## Sections by kind

- **text**: ` + "`" + `## Note` + "`" + ` with the captured text verbatim.
- **voice**: ` + "`" + `## Transcript` + "`" + `.
- **article**: source fields (URL, author, site, published), ` + "`" + `## Summary` + "`" + `,
  then optional ` + "`" + `## Highlights` + "`" + ` and ` + "`" + `## Analysis` + "`" + `.
- **paper**: authors, categories, published date and PDF link, ` + "`" + `## Summary` + "`" + `,
  ` + "`" + `## Key Findings` + "`" + ` (numbered) and ` + "`" + `## Applications` + "`" + `.

## Rules

1. The frontmatter is authoritative for tags; inline ` + "`" + `#hashtags` + "`" + ` in the body are display only.
2. Documents are regenerated from the record store; manual edits may be overwritten.
3. Use ` + "`" + `get_record` + "`" + ` with the ID, not the file path, to read a record.
`
