// Package captcha provides verifiers for the recovery request gate.
// HTTPVerifier speaks the widely used siteverify POST protocol (reCAPTCHA,
// hCaptcha, Turnstile); StaticVerifier is for tests and development.
//
// Verification failures of any kind, including transport errors and
// timeouts, must be treated as rejection by the caller.
package captcha
