// Package auth provides identity verification and authorisation for the
// Gray Logic telemetry core.
//
// It implements a 4-role model (user, device, admin, system) with:
//   - Static role-permission mapping (compile-time, no database lookup)
//   - A wildcard permission held only by the system role
//   - HS256 JWT verification producing an Identity
//
// Token issuance belongs to the account service. GenerateAccessToken exists
// for service-to-service tokens and tests; this package never stores
// credentials.
package auth
