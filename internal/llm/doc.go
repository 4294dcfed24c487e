// Package llm defines the contract every language-model backend satisfies,
// the static model catalog each backend declares, and the pieces of the
// generation pipeline that do not depend on a particular backend: prompt
// assembly, token estimation and classification of backend failures.
//
// Concrete adapters live in sub-packages (openai, genai, anthropic, vertexai)
// and are assembled by the provider registry.
package llm
