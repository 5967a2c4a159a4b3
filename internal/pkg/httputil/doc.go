// Package httputil is the single place handlers write JSON from. Keeping
// encoding, error envelopes, and body limits here keeps every endpoint's
// wire behavior identical.
package httputil
