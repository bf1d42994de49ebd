package main

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (unreadable or invalid config)
	ExitDataError     = 3 // Data error (unreadable corpus, no usable text)
	ExitIndexNotBuilt = 4 // No index has been built yet
	ExitUpstream      = 5 // Embedding service or chat model unavailable
	ExitIndexStale    = 6 // Index is older than the corpus
	ExitModelNotFound = 7 // Embedding model not pulled
)
