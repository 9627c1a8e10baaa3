package client

import (
	"strings"
)

func (c *Handler) handleSYST() {
	c.WriteMessage(StatusSystemType, "UNIX Type: L8")
}

func (c *Handler) handleOPTS() {
	args := strings.SplitN(c.param, " ", 2)
	if strings.ToUpper(args[0]) == "UTF8" {
		c.WriteMessage(StatusOK, "I'm in UTF8 only anyway")
	} else {
		c.WriteMessage(StatusSyntaxErrorNotRecognised, "Don't know this option")
	}
}

func (c *Handler) handleNOOP() {
	c.WriteMessage(StatusOK, "OK")
}

func (c *Handler) handleFEAT() {
	_ = c.writeLine("211- These are my features")
	defer c.WriteMessage(StatusSystemStatus, "End")

	features := []string{
		"UTF8",
		"SIZE",
		"MDTM",
		"EPSV",
		"REST STREAM",
	}

	for _, f := range features {
		_ = c.writeLine(" " + f)
	}
}

func (c *Handler) handleTYPE() {
	switch strings.ToUpper(c.param) {
	case "I", "L 8":
		c.WriteMessage(StatusOK, "Type set to binary")
	case "A", "A N":
		c.WriteMessage(StatusOK, "Type set to ASCII")
	default:
		c.WriteMessage(StatusSyntaxErrorNotRecognised, "Not understood")
	}
}

func (c *Handler) handleQUIT() {
	c.WriteMessage(StatusClosingControlConn, "Goodbye")
	c.disconnect()
}

// handleABOR runs on the reading goroutine so that it can interrupt the
// command in flight. The aborted command answers 426 itself.
func (c *Handler) handleABOR() {
	if c.commandAbortCancelFn != nil {
		c.commandAbortCancelFn()
	}
	c.closeDataConnection()
	c.commandRunningWg.Wait()
	c.WriteMessage(StatusClosingDataConn, "abort command was successfully processed")
}
