// Package plugins contains the built-in interception plugins.
//
//   - logger: logs every request
//   - cors: adds CORS headers the upstream did not set
//   - block5xx: replaces upstream 5xx responses
//   - mock: answers from recordings according to the active rule set
//   - recorder: captures exchanges into the recording library
//   - rewrite: static request/response rewriting with JSONPath assignments
//   - websocket: upgrade path blocking and message rules
//
// Builtins returns their registrations in the default order.
package plugins
