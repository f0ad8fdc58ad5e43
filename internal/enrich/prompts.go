package enrich

const tagPrompt = `You label personal notes for a knowledge base.
Return JSON only: {"tags": ["..."]}.
Give 1 to 5 short lowercase topic tags. Use hyphens instead of spaces.`

const articlePrompt = `You summarize web articles for a personal knowledge base.
Return JSON only with these fields:
{"summary": "3-5 sentence summary",
 "highlights": ["up to 5 notable points"],
 "analysis": "one paragraph on why this matters",
 "tags": ["1-5 lowercase topic tags"]}`

const paperPrompt = `You summarize research papers for a personal knowledge base.
Return JSON only with these fields:
{"summary": "plain-language summary in 3-5 sentences",
 "key_findings": ["up to 5 findings"],
 "applications": ["up to 3 practical applications"],
 "tags": ["1-5 lowercase topic tags"]}`
