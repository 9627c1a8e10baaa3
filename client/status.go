package client

// Reply codes used by the session, see RFC 959 section 4.2.
const (
	StatusFileStatusOK = 150

	StatusOK                 = 200
	StatusNotImplemented     = 202
	StatusSystemStatus       = 211
	StatusFileStatus         = 213
	StatusSystemType         = 215
	StatusServiceReady       = 220
	StatusClosingControlConn = 221
	StatusClosingDataConn    = 226
	StatusEnteringPASV       = 227
	StatusEnteringEPSV       = 229
	StatusUserLoggedIn       = 230
	StatusFileOK             = 250
	StatusPathCreated        = 257

	StatusUserOK            = 331
	StatusFileActionPending = 350

	StatusCannotOpenDataConnection = 425
	StatusTransferAborted          = 426
	StatusFileActionNotTaken       = 450
	StatusLocalError               = 451

	StatusSyntaxErrorNotRecognised = 500
	StatusSyntaxErrorParameters    = 501
	StatusCommandNotImplemented    = 502
	StatusBadCommandSequence       = 503
	StatusNotLoggedIn              = 530
	StatusActionNotTaken           = 550
)
