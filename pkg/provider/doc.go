// Package provider gives every LLM backend the same chat and function-calling contract.
//
// Invariants:
// - History is per provider instance and bounded to the session store's turn limit.
// - History only changes after a successful call.
// - Every completion goes through the provider's resilience guard; SDK retries are off.
// - Callers only ever see *faults.Error values.
//
// Usage:
//
//	reg := provider.NewRegistry(logger)
//	_ = reg.Build("anthropic", settings, provider.Options{Breakers: breakers})
//	p, _ := reg.Active()
//	resp, _ := p.Chat(ctx, provider.ChatRequest{Message: "list users", SessionID: "s1"})
//	_ = resp
package provider
