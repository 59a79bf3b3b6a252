package analyzer

// cueExtractionPrompt instructs the model to propose visual cues for one
// transcript window. The response must be a single JSON object so the decode
// path stays deterministic.
const cueExtractionPrompt = `You identify moments in a podcast transcript that deserve an illustrative image.

Given a transcript window with its time range, propose at most three visual cues. Each cue names a concrete, searchable subject (a place, object, person, or scene) actually discussed at that moment — not abstract concepts.

Respond with JSON only, in this exact shape:
{"cues":[{"timestamp_seconds": <number within the window>, "query": "<short image search phrase>", "priority": <0.0-1.0, how strongly the moment wants a visual>}]}

Rules:
- timestamp_seconds must fall inside the stated window.
- query must be 2-8 words, concrete and depictable.
- Skip filler, greetings, and ad reads: return {"cues":[]} when nothing qualifies.`
