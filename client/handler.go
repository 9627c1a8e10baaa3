package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/beyondstorage/go-storage/v4/types"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/command"
	"github.com/beyondstorage/beyond-relay/config"
	"github.com/beyondstorage/beyond-relay/pipe"
	"github.com/beyondstorage/beyond-relay/transfer"
	"github.com/beyondstorage/beyond-relay/utils"
)

var errNoDataConnection = errors.New("no connection declared")

// Handler drives one control connection.
type Handler struct {
	id            string                 // id of the client
	conn          utils.Conn             // TCP connection
	writer        *bufio.Writer          // Writer on the TCP connection
	reader        *bufio.Reader          // Reader on the TCP connection
	storager      types.Storager         // The root storager
	user          string                 // User name given by USER
	loginUser     string                 // login in user name
	path          string                 // Current path
	command       string                 // Command received on the connection
	param         string                 // Param of the FTP command
	connectedAt   time.Time              // Date of connection
	remoteAddr    string                 // Remote address of the connection
	ctxRest       int64                  // Restart point
	ctxRnfr       string                 // Rename from
	serverSetting *config.ServerSettings // serverSetting
	log           *zap.Logger

	writeMu sync.Mutex // guards writer
	sinkMu  sync.Mutex // serializes server commands

	dataMu   sync.Mutex
	transfer transfer.Handler         // Declared by PASV/EPSV/PORT
	dataConn *transfer.DataConnection // Open data connection
	dataCmd  *command.Orchestrator    // Runs data connection commands

	commandArrivedSignalCh chan *CommandDescription
	commandAbortCtx        context.Context
	commandAbortCancelFn   context.CancelFunc
	commandRunningWg       sync.WaitGroup

	passiveTransferFactory func(listenHost string, portRange *config.PortRange) (transfer.Handler, int, error)
	activeTransferFactory  func(*net.TCPAddr) transfer.Handler
}

// Path provides the current working directory of the client.
func (c *Handler) Path() string {
	return c.path
}

// SetPath changes the current working directory.
func (c *Handler) SetPath(path string) {
	c.path = path
}

// HandleCommands reads the stream of commands.
func (c *Handler) HandleCommands() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	go c.handleCommand(ctx)
	defer func() {
		c.closeDataConnection()
		cancelFunc()
	}()
	for {
		line, err := c.reader.ReadString('\n')

		if err != nil {
			if err == io.EOF {
				c.log.Debug("TCP connect close")
			} else {
				c.log.Error("Read error", zap.Error(err))
			}
			return
		}

		c.log.Debug("Receive command", zap.String("receive", line))

		command, param := utils.ParseLine(line)
		command = strings.ToUpper(command)

		cmdDesc, ok := commandsMap[command]
		if !ok {
			c.WriteMessage(StatusSyntaxErrorNotRecognised, "Unknown command")
			continue
		}

		if cmdDesc == nil {
			c.WriteMessage(StatusCommandNotImplemented, command+" command not supported")
			continue
		}

		if c.loginUser == "" && !cmdDesc.Open {
			c.WriteMessage(StatusNotLoggedIn, "Please login with USER and PASS")
			continue
		}

		switch command {
		case ABOR:
			c.handleABOR()
		case QUIT:
			c.commandRunningWg.Wait()
			c.handleQUIT()
			return
		default:
			c.commandRunningWg.Wait()
			c.commandRunningWg.Add(1)
			c.commandAbortCtx, c.commandAbortCancelFn = context.WithCancel(context.Background())
			c.command = command
			c.param = param
			c.commandArrivedSignalCh <- cmdDesc
		}
	}
}

// handleCommand executes commands one at a time.
func (c *Handler) handleCommand(ctx context.Context) {
	for {
		select {
		case cmdDesc := <-c.commandArrivedSignalCh:
			c.execute(cmdDesc)
			c.commandRunningWg.Done()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Handler) execute(cmdDesc *CommandDescription) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Internal error", zap.Any("panic", r), zap.String("trace", string(debug.Stack())))
			c.WriteMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("Internal error: %s", r))
		}
	}()
	cmdDesc.Fn(c)
}

// runDataCommand runs op on a new data connection. Failures of op itself are
// answered here, after releasing the connection.
func (c *Handler) runDataCommand(op command.Operation) {
	err := c.dataCmd.Handle(c.commandAbortCtx, c.command, op)
	if err == nil {
		return
	}
	c.log.Error("Data command failed", zap.String("command", c.command), zap.Error(err))
	c.closeDataConnection()
	c.WriteMessage(StatusLocalError, "Requested action aborted: local error in processing")
}

// Open implements command.Opener on the connection declared by PASV or PORT.
func (c *Handler) Open(ctx context.Context, opts command.OpenOptions) (command.DataConnection, error) {
	c.dataMu.Lock()
	h := c.transfer
	c.dataMu.Unlock()
	if h == nil {
		return nil, errNoDataConnection
	}

	c.WriteMessage(StatusFileStatusOK, "Using transfer connection")
	conn, err := h.Open(ctx)
	if err != nil {
		c.log.Debug("Transfer connection open failed", zap.Error(err))
		return nil, err
	}

	dc, err := transfer.NewDataConnection(ctx, c.id, conn, c.relaySettings(), c.log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.log.Debug("Transfer connection open", zap.String("command", opts.Command))

	c.dataMu.Lock()
	c.dataConn = dc
	c.dataMu.Unlock()
	return dc, nil
}

// Write implements command.Sink. Commands run synchronously, in order.
func (c *Handler) Write(ctx context.Context, cmd command.ServerCommand) error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	switch cmd := cmd.(type) {
	case command.SendResponse:
		return c.writeLine(cmd.Response.String())
	case command.CloseDataConnection:
		err := c.closeConnection(cmd.Connection)
		if err != nil {
			c.log.Debug("Close data connection", zap.Error(err))
		}
		return nil
	}
	return fmt.Errorf("unknown server command %T", cmd)
}

// closeDataConnection closes the open data connection, if any, through the
// command sink.
func (c *Handler) closeDataConnection() {
	c.dataMu.Lock()
	dc := c.dataConn
	c.dataMu.Unlock()

	if dc == nil {
		c.releaseTransfer()
		return
	}
	_ = c.Write(context.Background(), command.CloseDataConnection{Connection: dc})
}

func (c *Handler) closeConnection(conn command.DataConnection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*c.relaySettings().FlushGrace)
	defer cancel()

	err := conn.Close(ctx)
	c.releaseTransfer()
	c.log.Debug("Transfer connection closed")
	return err
}

// releaseTransfer forgets the declared data connection.
func (c *Handler) releaseTransfer() {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	if c.transfer != nil {
		_ = c.transfer.Close()
		c.transfer = nil
	}
	c.dataConn = nil
}

func (c *Handler) setTransfer(h transfer.Handler) {
	c.dataMu.Lock()
	old := c.transfer
	c.transfer = h
	c.dataMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (c *Handler) relaySettings() transfer.Settings {
	r := c.serverSetting.Relay
	if r == nil {
		return transfer.DefaultSettings
	}
	s := transfer.Settings{
		FlushGrace: r.FlushGrace,
		ReadBuffer: r.ReadBuffer,
		Pipe: pipe.Options{
			PauseThreshold:  r.PauseThreshold,
			ResumeThreshold: r.ResumeThreshold,
		},
	}
	if s.FlushGrace <= 0 {
		s.FlushGrace = transfer.DefaultSettings.FlushGrace
	}
	if r.HexDump {
		s.Dump = func(tag, line string) {
			c.log.Debug("Data", zap.String("tag", tag), zap.String("dump", line))
		}
	}
	return s
}

// WriteMessage writes server response
func (c *Handler) WriteMessage(code int, message string) {
	_ = c.writeLine(fmt.Sprintf("%d %s", code, message))
}

func (c *Handler) disconnect() {
	c.closeDataConnection()
	c.conn.Close()
}

func (c *Handler) writeLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.log.Debug("FTP response", zap.String("response", line))
	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

// NewHandler initializes a client handler when someone connects.
func NewHandler(id, remoteAddr string, connection utils.Conn, settings *config.ServerSettings,
	storager types.Storager,
	passive func(string, *config.PortRange) (transfer.Handler, int, error),
	active func(*net.TCPAddr) transfer.Handler,
) *Handler {
	p := &Handler{
		id:                     id,
		conn:                   connection,
		writer:                 bufio.NewWriter(connection),
		reader:                 bufio.NewReader(connection),
		storager:               storager,
		connectedAt:            time.Now().UTC(),
		remoteAddr:             remoteAddr,
		path:                   "/",
		serverSetting:          settings,
		log:                    zap.L().With(zap.String("id", id)),
		commandArrivedSignalCh: make(chan *CommandDescription),
		commandRunningWg:       sync.WaitGroup{},
		passiveTransferFactory: passive,
		activeTransferFactory:  active,
	}
	p.dataCmd = command.NewOrchestrator(p, p, p.log)

	return p
}
