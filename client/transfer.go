package client

import (
	"fmt"
	"strings"

	"github.com/beyondstorage/beyond-relay/utils"
)

func (c *Handler) handlePASV() {
	h, port, err := c.passiveTransferFactory(c.serverSetting.ListenHost, c.serverSetting.DataPortRange)
	if err != nil {
		c.WriteMessage(StatusCannotOpenDataConnection, "Can't open data connection.")
		return
	}
	c.setTransfer(h)

	if c.command == EPSV {
		c.WriteMessage(StatusEnteringEPSV, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", port))
		return
	}

	quads := strings.Split(c.serverSetting.PublicHost, ".")
	if len(quads) != 4 {
		c.WriteMessage(StatusCannotOpenDataConnection, "Public host is not an IPv4 address.")
		return
	}
	p1, p2 := port/256, port%256
	c.WriteMessage(StatusEnteringPASV, fmt.Sprintf("Entering Passive Mode (%s,%s,%s,%s,%d,%d)",
		quads[0], quads[1], quads[2], quads[3], p1, p2))
}

func (c *Handler) handlePORT() {
	addr, err := utils.ParseRemoteAddr(c.param)
	if err != nil {
		c.WriteMessage(StatusSyntaxErrorParameters, err.Error())
		return
	}
	c.setTransfer(c.activeTransferFactory(addr))
	c.WriteMessage(StatusOK, "PORT command successful")
}
