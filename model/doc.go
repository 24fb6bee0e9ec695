// Package model defines the provider-agnostic abstraction for the language
// models that back ModelAgent capabilities.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package in their own subpackages so the agent layer remains decoupled from
// vendor SDKs.
package model
