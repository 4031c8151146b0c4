// Package rules implements the mock rule sets: the Rule and RuleSet model,
// first-match evaluation with layered fallbacks, JSON Schema validation of
// rule documents, a directory-backed store of named sets and a watcher that
// reloads the active set when its file changes.
//
// A rule set document looks like:
//
//	{
//	  "rules": [
//	    {"method": ["GET"], "url": "/bff/:id/config", "action": "RET_REC"},
//	    {"method": ["POST"], "url": "login", "action": "PASS"}
//	  ],
//	  "fallback": "PASS",
//	  "fallback_fallback": "500",
//	  "recordingsFolder": "active"
//	}
package rules
