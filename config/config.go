package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del controller.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Chain      ChainConfig      `yaml:"chain"`
	Log        LogConfig        `yaml:"log"`
}

// ControllerConfig identifica al controller y limita el trabajo por swap.
type ControllerConfig struct {
	Address string `yaml:"address"` // principal frente al servicio de cifrado
	Owner   string `yaml:"owner"`   // admin inicial
	MaxScan int    `yaml:"max_scan"`
}

// VerifierConfig elige la estrategia de comparación y el presupuesto del servicio.
type VerifierConfig struct {
	Strategy     string  `yaml:"strategy"`       // enforce | decrypt-bit
	OpsPerSecond float64 `yaml:"ops_per_second"` // 0 = sin límite
	Burst        int     `yaml:"burst"`
}

// BreakerConfig controla el circuit breaker del verifier.
type BreakerConfig struct {
	MaxFailures     int `yaml:"max_failures"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o vacío para no persistir
}

// MetricsConfig expone /metrics si Addr no está vacío.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ChainConfig apunta al StateView de Uniswap v4 para el modo monitor.
type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	StateView       string `yaml:"state_view"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica YAML, aplica overrides de entorno y defaults, y valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Parse: %w", err)
	}
	return &cfg, nil
}

// ControllerAddress devuelve la dirección del controller.
func (c *Config) ControllerAddress() common.Address {
	return common.HexToAddress(c.Controller.Address)
}

// OwnerAddress devuelve el admin inicial.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Controller.Owner)
}

// StateViewAddress devuelve la dirección del contrato StateView.
func (c *Config) StateViewAddress() common.Address {
	return common.HexToAddress(c.Chain.StateView)
}

// PriceCacheTTL devuelve cuánto se cachea cada precio leído on-chain.
func (c *Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.Chain.CacheTTLSeconds) * time.Second
}

// BreakerCooldown devuelve el cooldown del breaker como time.Duration.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownSeconds) * time.Second
}

func (c *Config) validate() error {
	if !common.IsHexAddress(c.Controller.Address) {
		return fmt.Errorf("controller.address %q is not a hex address", c.Controller.Address)
	}
	if !common.IsHexAddress(c.Controller.Owner) {
		return fmt.Errorf("controller.owner %q is not a hex address", c.Controller.Owner)
	}
	if c.OwnerAddress() == (common.Address{}) {
		return fmt.Errorf("controller.owner must not be the zero address")
	}
	if c.Chain.RPCURL != "" && !common.IsHexAddress(c.Chain.StateView) {
		return fmt.Errorf("chain.state_view %q is not a hex address", c.Chain.StateView)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ILGUARD_OWNER"); v != "" {
		cfg.Controller.Owner = v
	}
	if v := os.Getenv("ILGUARD_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ILGUARD_STRATEGY"); v != "" {
		cfg.Verifier.Strategy = v
	}
	if v := os.Getenv("ILGUARD_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Controller.Address == "" {
		cfg.Controller.Address = "0x00000000000000000000000000000000000011c0"
	}
	if cfg.Controller.MaxScan <= 0 {
		cfg.Controller.MaxScan = 50
	}
	if cfg.Verifier.Strategy == "" {
		cfg.Verifier.Strategy = "enforce"
	}
	if cfg.Verifier.Burst <= 0 {
		cfg.Verifier.Burst = 100
	}
	if cfg.Breaker.MaxFailures <= 0 {
		cfg.Breaker.MaxFailures = 5
	}
	if cfg.Breaker.CooldownSeconds <= 0 {
		cfg.Breaker.CooldownSeconds = 600
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
