// Package security summarizes an engine configuration into a posture
// report and flags settings that weaken it.
//
// # What this package must NOT do
//
//   - Reject configurations. Validation belongs to authcore.Config.Validate;
//     a report only warns.
package security
