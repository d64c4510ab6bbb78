package ir

// FormatVersion is bumped whenever the element layout of a Document changes.
// It is part of the DocumentHash domain.
const FormatVersion = "1"
