// Package cli implements the labkit-session shell, a line-oriented driver
// for a session.Manager.
//
// Each command acts on an in-process identity hub, and the shell prints
// the resulting snapshot as JSON once it settles:
//
//	signin <token>              verify a bearer token and sign in
//	signin-as <subject> [email] sign in without a token
//	signout                     end the session
//	refresh                     re-resolve the current identity
//	state                       print the current snapshot
//	route <path>                decide what opening path does
//	can <permission>            check one permission
//
// Example:
//
//	$ labkit-session
//	signin-as ana ana@lab.example
//	route /samples
//	can samples.delete
//	exit
package cli
