// Package persona defines the static catalog of agent identities and the
// registry used to resolve them by key or display name. Personas are loaded
// once at startup and immutable afterwards; the registry derives the
// case-insensitive name index and the delegation eligibility rules from the
// catalog.
package persona
