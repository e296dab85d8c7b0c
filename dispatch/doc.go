// Package dispatch delivers recovery codes and change confirmations out of
// band. SMTP is the production channel; Logger writes messages to a
// structured log for development setups without a mail relay.
package dispatch
