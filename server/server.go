// Package server accepts control connections and hands out the data
// connection handlers sessions transfer files on.
package server

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/beyondstorage/go-storage/v4/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/config"
	"github.com/beyondstorage/beyond-relay/transfer"
	"github.com/beyondstorage/beyond-relay/utils"
)

// FTPServer is where everything is stored.
// We want to keep it as simple as possible.
type FTPServer struct {
	Listener  net.Listener // Listener used to receive files
	StartTime time.Time    // Time when the s was started

	setting  *config.ServerSettings
	storager types.Storager
}

func (s *FTPServer) Storager() types.Storager {
	return s.storager
}

func (s *FTPServer) Setting() *config.ServerSettings {
	return s.setting
}

func (s *FTPServer) AcceptClient() (utils.Conn, string, error) {
	conn, err := s.Listener.Accept()
	if err != nil {
		return nil, "", err
	}
	return conn, conn.RemoteAddr().String(), nil
}

func (s *FTPServer) Start() error {
	var err error
	s.Listener, err = net.Listen("tcp", fmt.Sprintf(
		"%s:%d", s.setting.ListenHost, s.setting.ListenPort,
	))
	if err != nil {
		return errors.Wrap(err, "cannot listen")
	}

	zap.L().Info("Listening...", zap.Stringer("addr", s.Listener.Addr()))
	return nil
}

// PassiveTransferFactory listens on a random free port of portRange.
func (s *FTPServer) PassiveTransferFactory(listenHost string, portRange *config.PortRange) (transfer.Handler, int, error) {
	var tcpListener *net.TCPListener
	var err error

	span := portRange.End - portRange.Start
	if span <= 0 {
		span = 1
	}
	for attempt := 0; attempt < span && attempt < 100; attempt++ {
		port := portRange.Start + rand.Intn(span)
		var localAddr *net.TCPAddr
		localAddr, err = net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", listenHost, port))
		if err != nil {
			continue
		}

		tcpListener, err = net.ListenTCP("tcp", localAddr)
		if err == nil {
			break
		}
	}

	if err != nil || tcpListener == nil {
		zap.L().Error("Could not listen for passive connection", zap.Error(err))
		return nil, 0, errors.New("cannot listen")
	}

	p := &transfer.PassiveHandler{
		TCPListener: tcpListener,
		Listener:    tcpListener,
	}

	return p, tcpListener.Addr().(*net.TCPAddr).Port, nil
}

func (s *FTPServer) ActiveTransferFactory(addr *net.TCPAddr) transfer.Handler {
	return &transfer.ActiveHandler{
		RemoteAddr: addr,
	}
}

// Stop closes the listener.
func (s *FTPServer) Stop() {
	if s.Listener != nil {
		l := s.Listener
		s.Listener = nil
		l.Close()
	}
}

// NewFTPServer creates a new FTPServer instance.
func NewFTPServer(c *config.Config) (*FTPServer, error) {
	setting := config.GetServerSetting(c)
	storager, err := utils.NewStoragerFromString(c.Service)
	if err != nil {
		return nil, err
	}
	return &FTPServer{
		StartTime: time.Now().UTC(),
		setting:   setting,
		storager:  storager,
	}, nil
}
