package main

const (
	exitOK              = 0
	exitInternalFailure = 1
	exitInvalidInput    = 2
	exitSchemaInvalid   = 3
	exitStateCorrupt    = 4
	exitStateContention = 5
	exitObserverFailure = 6
)
