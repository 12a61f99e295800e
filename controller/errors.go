package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrUserRegister  = errors.New("failed to register user")
	ErrGenerateToken = errors.New("failed to generate token")
	ErrUserLogin     = errors.New("failed to login")

	ErrCreateSession      = errors.New("failed to create an agent session")
	ErrGetSessions        = errors.New("failed to get agent sessions")
	ErrDeleteSession      = errors.New("failed to delete an agent session")
	ErrGetSessionMessages = errors.New("failed to get session messages")
	ErrUpdateSessionTitle = errors.New("failed to update session title")

	ErrCreateAgent = errors.New("failed to create an agent")
	ErrCallAgent   = errors.New("error while calling agent")

	ErrTriggerScan     = errors.New("failed to trigger scan")
	ErrScanInProgress  = errors.New("a scan is already in progress")
	ErrGetScanRuns     = errors.New("failed to get scan runs")
	ErrScanRunNotFound = errors.New("scan run not found")

	ErrGetDocuments       = errors.New("failed to get documents")
	ErrGetFailedDocuments = errors.New("failed to get failed documents")
	ErrGetDocumentRecords = errors.New("failed to get document processing records")
)
