// Package plugin implements the interception pipeline: the Decision model,
// the plugin Registry and the Executor that runs enabled plugins in order.
//
// A plugin is registered once with a handler implementing any subset of the
// capability interfaces RequestHandler, UpgradeHandler and MessageHandler.
// Enabled state, per-plugin configuration and execution order are held by
// the Registry and may change at runtime; each pipeline run works on a
// snapshot taken under a read lock, so management calls never disturb an
// in-flight run.
//
// # Effective order
//
// Plugins named in the order list run first, in list order. Plugins absent
// from the list follow in registration order.
//
// # Merging
//
// Every handler returns a partial Result that is merged into the running
// Decision field by field: set fields overwrite, Metadata is shallow-merged.
// A Result with StopProcessing (or, at the message stage, ActionBlock) ends
// the run. A handler error or panic is recorded in Metadata["errors"] and
// the run continues with the next plugin.
package plugin
