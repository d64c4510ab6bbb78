// Package remote submits rule documents to a rule backend.
//
// A Client issues PUT {base}/rule{index} with the serialized document and
// turns the response into a Result: accepted, or rejected with the backend's
// issue list. Network failures and 5xx answers are TransportErrors and feed a
// circuit breaker, so a dead backend is not hammered by every debounce cycle.
package remote
