// Package labs defines the laboratory (tenant) record.
//
// A laboratory is complete once it has a non-blank name. Until then every
// session bound to it is onboarding-pending and the application routes the
// user to the onboarding page.
package labs
