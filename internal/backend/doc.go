// Package backend is a small rule backend for development and tests.
//
// It accepts rule documents at PUT /rule{index} in the XML or JSON wire
// form, checks them, stores accepted documents in the sqlite store, and
// answers with the issue list the editor session maps back onto nodes.
// Every PUT is journaled with its request id.
package backend
