// Package models provides functionality for listing available OpenAI
// chat models, so users can discover which models their API key can use
// for translation.
package models
