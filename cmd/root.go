package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/client"
	"github.com/beyondstorage/beyond-relay/config"
	"github.com/beyondstorage/beyond-relay/constants"
	"github.com/beyondstorage/beyond-relay/logger"
	"github.com/beyondstorage/beyond-relay/metrics"
	"github.com/beyondstorage/beyond-relay/pprof"
	"github.com/beyondstorage/beyond-relay/server"
	"github.com/beyondstorage/beyond-relay/utils"
)

var (
	versionFlag bool
	cfgFileFlag string

	clientCount atomic.Int32
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   constants.Name,
	Short: "An FTP relay that persists all data to Beyond Storage.",
	Long:  "An FTP relay that persists all data to Beyond Storage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFlag {
			fmt.Fprintf(os.Stdout, "BeyondRelay version %s\n", constants.Version)
			return nil
		}

		c := config.LoadConfigFromFilepath(cfgFileFlag)
		if err := logger.SetUpLog(c.Log); err != nil {
			return fmt.Errorf("log init error: %w", err)
		}
		defer zap.L().Sync()

		pprof.StartPP(c.DebugAddr)

		s, err := server.NewFTPServer(c)
		if err != nil {
			return fmt.Errorf("server init error: %w", err)
		}
		return StartServer(s)
	},
}

// StartServer accepts clients until the server is stopped.
func StartServer(s server.Server) error {
	if err := s.Start(); err != nil {
		return err
	}
	go signalHandler(s)
	for {
		connection, addr, err := s.AcceptClient()
		if err != nil {
			zap.L().Info("Stop accepting clients", zap.Error(err))
			return nil
		}

		id := strings.Replace(uuid.NewV4().String(), "-", "", -1)
		go serveClient(s, id, addr, connection)
	}
}

func serveClient(s server.Server, id, addr string, connection utils.Conn) {
	c := client.NewHandler(
		id, addr, connection, s.Setting(), s.Storager(), s.PassiveTransferFactory, s.ActiveTransferFactory,
	)
	log := zap.L().With(zap.String("id", id), zap.String("remote", addr))

	metrics.Sessions.Inc()
	log.Info("FTP client connected", zap.Int32("total", clientCount.Inc()))
	c.WriteMessage(client.StatusServiceReady, "Welcome to BeyondRelay Server")

	c.HandleCommands()

	metrics.Sessions.Dec()
	log.Info("FTP client disconnected", zap.Int32("total", clientCount.Dec()))
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", constants.Name, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&versionFlag, "version", "v", false, "Show version")
	RootCmd.PersistentFlags().StringVarP(&cfgFileFlag, "config", "c", "", "Specify config file")
}

func signalHandler(s server.Server) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch
	s.Stop()
}
