package llm

const titleSystemPrompt = `You write titles for student questions in an online course forum.
Reply with the title only: 3 to 5 words, no quotes, no trailing punctuation.`

const summarySystemPrompt = `You condense an instructor's final answer to a student question.
Reply with 1 to 3 plain sentences, at most 300 characters, no preamble.`
