package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// LedgerConfig описывает подключение к контракту EventTicketing.
type LedgerConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	ChainID         int64         `mapstructure:"chain_id"`
	PrivateKey      string        `mapstructure:"private_key"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
}

const (
	ZeroAddress    = "0x0000000000000000000000000000000000000000"
	SepoliaChainID = 11155111
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "blocktix")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("ledger.rpc_url", "http://localhost:8545")
	v.SetDefault("ledger.contract_address", ZeroAddress)
	v.SetDefault("ledger.chain_id", SepoliaChainID)
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.call_timeout", 15*time.Second)
	v.SetDefault("ledger.tx_timeout", 2*time.Minute)
}

// Load reads configuration from environment variables, e.g. SERVER_PORT or LEDGER_RPC_URL.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Ledger.CallTimeout <= 0 {
		return nil, fmt.Errorf("ledger call timeout must be positive, got %s", cfg.Ledger.CallTimeout)
	}
	if cfg.Ledger.TxTimeout <= 0 {
		return nil, fmt.Errorf("ledger tx timeout must be positive, got %s", cfg.Ledger.TxTimeout)
	}

	return &cfg, nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
