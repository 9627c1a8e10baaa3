package client

const (
	USER = "USER"
	PASS = "PASS"
	AUTH = "AUTH"
	PROT = "PROT"
	PBSZ = "PBSZ"
	FEAT = "FEAT"
	SYST = "SYST"
	NOOP = "NOOP"
	OPTS = "OPTS"
	ABOR = "ABOR"
	SIZE = "SIZE"
	STAT = "STAT"
	MDTM = "MDTM"
	RETR = "RETR"
	STOR = "STOR"
	APPE = "APPE"
	DELE = "DELE"
	RNFR = "RNFR"
	RNTO = "RNTO"
	ALLO = "ALLO"
	REST = "REST"
	SITE = "SITE"
	CWD  = "CWD"
	PWD  = "PWD"
	CDUP = "CDUP"
	NLST = "NLST"
	LIST = "LIST"
	MKD  = "MKD"
	RMD  = "RMD"
	XMKD = "XMKD"
	XRMD = "XRMD"
	XPWD = "XPWD"
	XCUP = "XCUP"
	TYPE = "TYPE"
	PASV = "PASV"
	EPSV = "EPSV"
	PORT = "PORT"
	QUIT = "QUIT"
	ACCT = "ACCT"
	EPRT = "EPRT"
	HELP = "HELP"
	MLSD = "MLSD"
	MLST = "MLST"
	MODE = "MODE"
	REIN = "REIN"
	STOU = "STOU"
	STRU = "STRU"
)

// CommandDescription defines which function should be used and if it should be
// open to anyone or only logged in users.
type CommandDescription struct {
	Open bool           // Open to clients without auth.
	Fn   func(*Handler) // Function to handle it.
}

var commandsMap = map[string]*CommandDescription{
	// Authentication.
	USER: {Fn: (*Handler).handleUSER, Open: true},
	PASS: {Fn: (*Handler).handlePASS, Open: true},

	// TLS is not relayed.
	AUTH: nil,
	PROT: nil,
	PBSZ: nil,

	// Misc.
	FEAT: {Fn: (*Handler).handleFEAT, Open: true},
	SYST: {Fn: (*Handler).handleSYST, Open: true},
	NOOP: {Fn: (*Handler).handleNOOP, Open: true},
	OPTS: {Fn: (*Handler).handleOPTS, Open: true},
	ABOR: {Fn: (*Handler).handleABOR},
	STAT: nil,
	SITE: nil,

	// File access.
	SIZE: {Fn: (*Handler).handleSIZE},
	MDTM: {Fn: (*Handler).handleMDTM},
	RETR: {Fn: (*Handler).handleRETR},
	STOR: {Fn: (*Handler).handleSTOR},
	APPE: {Fn: (*Handler).handleAPPE},
	DELE: {Fn: (*Handler).handleDELE},
	RNFR: {Fn: (*Handler).handleRNFR},
	RNTO: {Fn: (*Handler).handleRNTO},
	ALLO: {Fn: (*Handler).handleALLO},
	REST: {Fn: (*Handler).handleREST},

	// Directory handling.
	CWD:  {Fn: (*Handler).handleCWD},
	PWD:  {Fn: (*Handler).handlePWD},
	CDUP: {Fn: (*Handler).handleCDUP},
	NLST: {Fn: (*Handler).handleNLST},
	LIST: {Fn: (*Handler).handleLIST},
	MKD:  {Fn: (*Handler).handleMKD},
	RMD:  {Fn: (*Handler).handleRMD},

	// Deprecated aliases still sent by deployed clients, see RFC 5797.
	XMKD: {Fn: (*Handler).handleMKD},
	XRMD: {Fn: (*Handler).handleRMD},
	XPWD: {Fn: (*Handler).handlePWD},
	XCUP: {Fn: (*Handler).handleCDUP},

	// Connection handling.
	TYPE: {Fn: (*Handler).handleTYPE},
	PASV: {Fn: (*Handler).handlePASV},
	EPSV: {Fn: (*Handler).handlePASV},
	PORT: {Fn: (*Handler).handlePORT},
	QUIT: {Fn: (*Handler).handleQUIT, Open: true},

	// Not supported.
	ACCT: nil,
	EPRT: nil,
	HELP: nil,
	MLSD: nil,
	MLST: nil,
	MODE: nil,
	REIN: nil,
	STOU: nil,
	STRU: nil,
}
