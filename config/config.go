package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/beyondstorage/beyond-relay/utils"
)

// A Config stores a configuration of BeyondRelay.
type Config struct {
	Service    string      `toml:"service"`
	ListenHost string      `toml:"host"`
	ListenPort int         `toml:"port"`
	PublicHost string      `toml:"public-host"`
	StartPort  int         `toml:"start-port"`
	EndPort    int         `toml:"end-port"`
	DebugAddr  string      `toml:"debug-addr"`
	Relay      RelayConfig `toml:"relay"`
	Log        LogSettings `toml:"log"`
}

// RelayConfig tunes data connection relays.
type RelayConfig struct {
	FlushGrace      duration `toml:"flush-grace"`
	PauseThreshold  int64    `toml:"pause-threshold"`
	ResumeThreshold int64    `toml:"resume-threshold"`
	ReadBuffer      int      `toml:"read-buffer"`
	HexDump         bool     `toml:"hex-dump"`
}

// LogSettings configures the global logger.
type LogSettings struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // console or json
	File       string `toml:"file"`   // rotate into this file instead of stderr
	MaxSize    int    `toml:"max-size"`
	MaxBackups int    `toml:"max-backups"`
}

// duration decodes "5s"-style toml strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ServerSettings define all the server settings.
type ServerSettings struct {
	Service       string
	ListenHost    string     // Host to receive connections on
	ListenPort    int        // Port to listen on
	PublicHost    string     // Public IP to expose (only an IP address is accepted at this stage)
	DataPortRange *PortRange // Port Range for data connections. Random one will be used if not specified
	Relay         *RelaySettings
}

// RelaySettings are the resolved relay settings.
type RelaySettings struct {
	FlushGrace      time.Duration
	PauseThreshold  int64
	ResumeThreshold int64
	ReadBuffer      int
	HexDump         bool
}

// PortRange is a range of ports.
type PortRange struct {
	Start int // Range start
	End   int // Range end
}

// LoadConfigFromFilepath loads configuration from a specified local path.
// It exits if the file cannot be decoded.
func LoadConfigFromFilepath(p string) *Config {
	conf := &Config{}
	if p != "" {
		_, err := toml.DecodeFile(p, conf)
		utils.MustNil(err, "decode config "+p)
	}
	err := setDefaultValue(conf)
	utils.MustNil(err)
	return conf
}

// LoadConfig decodes a configuration from toml text.
func LoadConfig(data string) (*Config, error) {
	conf := &Config{}
	if _, err := toml.Decode(data, conf); err != nil {
		return nil, err
	}
	if err := setDefaultValue(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// setDefaultValue checks the configuration.
func setDefaultValue(c *Config) error {
	if c.Service == "" {
		c.Service = "memory:///ftp"
	}
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.ListenPort == 0 {
		// For the default value (0), We take the default port (21).
		c.ListenPort = 21
	} else if c.ListenPort == -1 {
		// For the automatic value, We let the system decide (0).
		c.ListenPort = 0
	}
	if c.PublicHost == "" {
		c.PublicHost = "127.0.0.1"
	}
	if c.StartPort == 0 {
		c.StartPort = 1024
	}
	if c.EndPort == 0 {
		c.EndPort = 65535
	}
	if c.DebugAddr == "" {
		c.DebugAddr = "localhost:6060"
	}

	r := &c.Relay
	if r.FlushGrace.Duration == 0 {
		r.FlushGrace.Duration = 5 * time.Second
	}
	if r.PauseThreshold == 0 {
		r.PauseThreshold = 64 * 1024
	}
	if r.ResumeThreshold == 0 || r.ResumeThreshold > r.PauseThreshold {
		r.ResumeThreshold = r.PauseThreshold / 2
	}
	if r.ReadBuffer == 0 {
		r.ReadBuffer = 32 * 1024
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}

	return nil
}

func GetServerSetting(c *Config) *ServerSettings {
	return &ServerSettings{
		Service:    c.Service,
		ListenHost: c.ListenHost,
		ListenPort: c.ListenPort,
		PublicHost: c.PublicHost,
		DataPortRange: &PortRange{
			Start: c.StartPort,
			End:   c.EndPort,
		},
		Relay: &RelaySettings{
			FlushGrace:      c.Relay.FlushGrace.Duration,
			PauseThreshold:  c.Relay.PauseThreshold,
			ResumeThreshold: c.Relay.ResumeThreshold,
			ReadBuffer:      c.Relay.ReadBuffer,
			HexDump:         c.Relay.HexDump,
		},
	}
}
