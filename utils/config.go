package utils

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	ControlAddr      string
	HTTPAddr         string
	DatagramAddr     string
	CertFile         string
	KeyFile          string
	HandshakeTimeout float64
	FlushInterval    float64
	SendQueueSize    int
	InboxSize        int
	DatagramQueue    int
	OriginPatterns   []string
}

type SimConfig struct {
	Map             string
	TickDelta       float64
	BroadcastEvery  int
	SafeInterval    int
	HistoryCap      int
	MaxCatchupTicks int
	MaxCommandAge   float64
	RepathInterval  float64
	FirstWave       float64
	WaveInterval    float64
	WaveSize        int
	AggroRange      float64
}

type ClientConfig struct {
	ServerAddr         string
	DatagramAddr       string
	WebsocketURL       string
	InsecureSkipVerify bool
	FrameRate          int
	Damping            float64
	LagBuffer          float64
	SnapThreshold      float64
	MaxFrameDelta      float64
	ProjectileLifetime float64
}

type ReplayConfig struct {
	Dir string
}

type MathConfig struct {
	Float64EqualityThreshold float64
}

type Config struct {
	Server ServerConfig
	Sim    SimConfig
	Client ClientConfig
	Replay ReplayConfig
	Math   MathConfig
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ControlAddr:      ":4550",
			HTTPAddr:         ":4551",
			DatagramAddr:     ":4552",
			HandshakeTimeout: 5,
			FlushInterval:    0.02,
			SendQueueSize:    256,
			InboxSize:        1024,
			DatagramQueue:    64,
			OriginPatterns:   []string{"localhost:*", "127.0.0.1:*"},
		},
		Sim: SimConfig{
			TickDelta:       0.05,
			BroadcastEvery:  1,
			SafeInterval:    100,
			HistoryCap:      64,
			MaxCatchupTicks: 10,
			MaxCommandAge:   1,
			RepathInterval:  0.25,
			FirstWave:       10,
			WaveInterval:    30,
			WaveSize:        3,
			AggroRange:      7,
		},
		Client: ClientConfig{
			ServerAddr:         "localhost:4550",
			DatagramAddr:       "localhost:4552",
			InsecureSkipVerify: true,
			FrameRate:          60,
			Damping:            0.5,
			LagBuffer:          0.035,
			SnapThreshold:      1,
			MaxFrameDelta:      2,
			ProjectileLifetime: 3,
		},
		Math: MathConfig{
			Float64EqualityThreshold: 1e-9,
		},
	}
}

// ReadTOML decodes fileName over the defaults, so omitted keys keep their
// default values.
func ReadTOML(fileName string) (*Config, error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(file, config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfig is ReadTOML that falls back to defaults when the file does not
// exist.
func LoadConfig(fileName string) (*Config, error) {
	config, err := ReadTOML(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return config, err
}

func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func AlmostEqual(a, b, threshold float64) bool {
	return math.Abs(a-b) <= threshold
}
