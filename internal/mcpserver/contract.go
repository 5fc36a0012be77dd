package mcpserver

// NoteFormatContract describes the Markdown that notegraph reads and writes.
// LLM consumers should follow it when creating or importing notes.
const NoteFormatContract = `# notegraph Note Format Contract

Notes are identified by a unique title (case-insensitive). The body is
Markdown with a few extensions for links between notes and blocks.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL on import; falls back to the first H1, then the file name
tags:                               # OPTIONAL – YAML list
  - tag-one
---

Body text in Markdown.
` + "```" + `

## Links and references

1. **Note links** use double brackets with the exact title: ` + "`" + `[[Other note]]` + "`" + `.
   Links to titles that do not exist yet stay unresolved until that note is created.
2. **Aliased links** show different text: ` + "`" + `[shown text]([[Other note]])` + "`" + `.
3. **Tags** are ` + "`" + `#topic` + "`" + ` for a plain tag, or ` + "`" + `#[[Other note]]` + "`" + ` for a tag that is also a link.
4. **Block references** embed another block by id: ` + "`" + `((block-id))` + "`" + `. Exported files
   replace them with the referenced text.
5. **Task items** are ` + "`" + `- [ ] open` + "`" + ` and ` + "`" + `- [x] done` + "`" + `.
6. Titles MUST NOT contain brackets or line breaks.
7. Links inside code spans and fenced code blocks are left as text.

## Supported blocks

Paragraphs, headings 1 to 6, bulleted, numbered and task lists, block quotes,
fenced code blocks, horizontal rules (` + "`" + `---` + "`" + `) and images on their own line.
Inline marks: **bold**, *italic*, ` + "`" + `code` + "`" + `, ~~strikethrough~~ and <u>underline</u>.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into the note body,
  or inserts the image directly when ` + "`" + `note_title` + "`" + ` is given.
- Reference in notes using the absolute path: ` + "`" + `![description](/attachments/filename.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
---

# Weekly standup 2025-01-20

Attendees: [[Alice]], [[Bob]]. #meeting-notes

![Whiteboard photo](/attachments/standup-2025-01-20.jpg)

## Action items

- [ ] Alice to review the [design doc]([[Design doc]])
- [x] Bob to update ((3f2a9c1e-roadmap-block))
` + "```" + `
`
