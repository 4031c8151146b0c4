// Package matching provides URL pattern matching for interception rules.
//
// Three pattern shapes are supported, checked in this order:
//
//   - Empty pattern: matches every path.
//   - Segment pattern: any pattern containing a ":name" token. Pattern and
//     path are split on "/" and must have the same number of segments;
//     ":name" segments match any single segment, all other segments must be
//     equal (case-sensitive).
//   - Substring pattern: the pattern, with its leading slash removed, must
//     appear somewhere in the path (leading slash removed, case-sensitive).
//
// Glob helpers backed by doublestar are provided for include/exclude lists.
package matching
