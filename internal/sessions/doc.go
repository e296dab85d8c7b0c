// Package sessions persists recovery sessions in Redis. A session carries
// the flow position, the current anti-forgery token, and the binding token
// that ties the session to the account under recovery.
//
// Session IDs are random UUIDs and are regenerated when the session's
// privilege rises, so an ID captured before code verification is worthless
// afterwards.
package sessions
