package client

import (
	"go.uber.org/zap"
)

// Handle the "USER" command.
func (c *Handler) handleUSER() {
	c.user = c.param
	c.WriteMessage(StatusUserOK, "User name okay, need password.")
}

// Handle the "PASS" command. The relay does not check credentials, any
// user name is accepted once a password follows it.
func (c *Handler) handlePASS() {
	if c.user == "" {
		c.WriteMessage(StatusBadCommandSequence, "User is expected before Pass")
		return
	}

	c.loginUser = c.user
	c.user = ""
	c.log.Info("Client logged in", zap.String("user", c.loginUser))
	c.WriteMessage(StatusUserLoggedIn, "Password ok, continue")
}
