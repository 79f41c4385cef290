package mcpserver

// LinkFormatContract explains to LLM consumers how documents become link
// targets and what the linker writes into them.
const LinkFormatContract = `# Crosslink Link Format

The linker scans every Markdown document in the vault and turns plain-text
mentions of other documents into wikilinks.

## What makes a document linkable

` + "```" + `markdown
---
aliases:                 # OPTIONAL – extra phrases that refer to this document
  - doc two
  - the second doc
tags:                    # OPTIONAL – labels; documents sharing one are related
  - project-x
---

Body text in standard Markdown.
` + "```" + `

1. **File name.** The file name without extension is always an alias
   (` + "`" + `notes/doc2.md` + "`" + ` is reachable as "doc2").
2. **Aliases** may span several words. Matching is case-insensitive and ignores
   the amount of whitespace between words.
3. **Tags** relate documents. Two documents sharing a tag are at distance 1;
   a chain of shared tags adds one per hop.
4. A mention is linked only if its target is within the configured distance
   (default 2) and is not the document itself.

## What the linker writes

- A mention becomes ` + "`" + `[[<target-file-name>|<original text>]]` + "`" + `.
- The longest alias wins: "doc two" is preferred over "doc".
- Text inside ` + "`" + `$math$` + "`" + `, ` + "`" + `$$math$$` + "`" + `, fenced code blocks, existing
  ` + "`" + `[[wikilinks]]` + "`" + ` and ` + "`" + `[markdown](links)` + "`" + ` is never touched.
- The YAML header and all whitespace are preserved byte for byte.
- Running the linker twice produces no further changes.

## Collisions

When two documents claim the same alias, the document discovered first
(sorted by path) wins and the collision is logged.
`
