// Package knowledge answers free-text questions for the voice bot's Q&A mode.
//
// Backends:
//
//   - qnamaker: the QnA Maker generateAnswer REST endpoint
//   - local: Q&A pairs from a YAML file, indexed in a chromem-go collection
//     with either the offline hashing embedder or Gemini embeddings
//   - none: never matches
//
// A local knowledge file is a YAML list:
//
//	- question: "¿Quién eres?"
//	  questions: ["¿Qué eres?"]
//	  answer: "Soy un demo de Alexa con Bot Framework."
//
// Answers below the configured score threshold are dropped. An empty result
// means no match.
package knowledge
