package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"LOGGING_OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"LOGGING_OUTPUT_STDERR"`

		FilePath  string `yaml:"filePath" envconfig:"LOGGING_FILE_PATH"`
		FileLevel string `yaml:"fileLevel" envconfig:"LOGGING_FILE_LEVEL"`
	} `yaml:"logging"`

	Server struct {
		Enabled bool   `yaml:"enabled" envconfig:"STATUS_SERVER_ENABLED"`
		Port    string `yaml:"port" envconfig:"STATUS_SERVER_PORT"`
		Host    string `yaml:"host" envconfig:"STATUS_SERVER_HOST"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"METRICS_ENABLED"`
		Public  bool   `yaml:"public" envconfig:"METRICS_PUBLIC"`
		Host    string `yaml:"host" envconfig:"METRICS_HOST"`
		Port    string `yaml:"port" envconfig:"METRICS_PORT"`
	} `yaml:"metrics"`

	Redis RedisConfig `yaml:"redis"`

	Database DatabaseConfig `yaml:"database"`

	Indexer IndexerConfig `yaml:"indexer"`

	PriceCache struct {
		Enabled   bool          `yaml:"enabled" envconfig:"PRICE_CACHE_ENABLED"`
		SizeMB    int           `yaml:"sizeMb" envconfig:"PRICE_CACHE_SIZE_MB"`
		TTL       time.Duration `yaml:"ttl" envconfig:"PRICE_CACHE_TTL"`
		UseRemote bool          `yaml:"useRemote" envconfig:"PRICE_CACHE_USE_REMOTE"`
	} `yaml:"priceCache"`

	ChainDefaults ChainConfig   `yaml:"chainDefaults"`
	Chains        []ChainConfig `yaml:"chains"`
}

type RedisConfig struct {
	Address     string        `yaml:"address" envconfig:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	Database    int           `yaml:"database" envconfig:"REDIS_DATABASE"`
	KeyPrefix   string        `yaml:"keyPrefix" envconfig:"REDIS_KEY_PREFIX"`
	DialTimeout time.Duration `yaml:"dialTimeout" envconfig:"REDIS_DIAL_TIMEOUT"`
}

type IndexerConfig struct {
	DisableV2       bool `yaml:"disableV2" envconfig:"INDEXER_DISABLE_V2"`
	DisableCL       bool `yaml:"disableCl" envconfig:"INDEXER_DISABLE_CL"`
	DisableNfpm     bool `yaml:"disableNfpm" envconfig:"INDEXER_DISABLE_NFPM"`
	DisableResolver bool `yaml:"disableResolver" envconfig:"INDEXER_DISABLE_RESOLVER"`

	DefaultBlockRange uint64 `yaml:"defaultBlockRange" envconfig:"INDEXER_DEFAULT_BLOCK_RANGE"`
	DefaultStartBlock uint64 `yaml:"defaultStartBlock" envconfig:"INDEXER_DEFAULT_START_BLOCK"`

	LogSettleDelay   time.Duration `yaml:"logSettleDelay" envconfig:"INDEXER_LOG_SETTLE_DELAY"`
	ResolveDelay     time.Duration `yaml:"resolveDelay" envconfig:"INDEXER_RESOLVE_DELAY"`
	ResolverInterval time.Duration `yaml:"resolverInterval" envconfig:"INDEXER_RESOLVER_INTERVAL"`
	CycleInterval    time.Duration `yaml:"cycleInterval" envconfig:"INDEXER_CYCLE_INTERVAL"`
	CorrelationTTL   time.Duration `yaml:"correlationTtl" envconfig:"INDEXER_CORRELATION_TTL"`
	MaxParallelPools int           `yaml:"maxParallelPools" envconfig:"INDEXER_MAX_PARALLEL_POOLS"`
	PoolQueueSize    int           `yaml:"poolQueueSize" envconfig:"INDEXER_POOL_QUEUE_SIZE"`
	MetricsInterval  time.Duration `yaml:"metricsInterval" envconfig:"INDEXER_METRICS_INTERVAL"`

	Lock struct {
		Prefix        string        `yaml:"prefix" envconfig:"INDEXER_LOCK_PREFIX"`
		TTL           time.Duration `yaml:"ttl" envconfig:"INDEXER_LOCK_TTL"`
		RenewInterval time.Duration `yaml:"renewInterval" envconfig:"INDEXER_LOCK_RENEW_INTERVAL"`
		MinBackoff    time.Duration `yaml:"minBackoff" envconfig:"INDEXER_LOCK_MIN_BACKOFF"`
		MaxBackoff    time.Duration `yaml:"maxBackoff" envconfig:"INDEXER_LOCK_MAX_BACKOFF"`
	} `yaml:"lock"`

	RpcTimeout time.Duration `yaml:"rpcTimeout" envconfig:"INDEXER_RPC_TIMEOUT"`
}

// ChainConfig describes one indexed chain. Zero fields are filled from chainDefaults.
type ChainConfig struct {
	ChainId   uint64           `yaml:"chainId"`
	Name      string           `yaml:"name"`
	Endpoints []EndpointConfig `yaml:"endpoints"`

	OracleAddress string `yaml:"oracleAddress"`

	V2Factory ContractConfig `yaml:"v2Factory"`
	ClFactory ContractConfig `yaml:"clFactory"`
	Nfpm      ContractConfig `yaml:"nfpm"`

	BlockRange uint64 `yaml:"blockRange"`
}

type ContractConfig struct {
	Address    string `yaml:"address"`
	StartBlock uint64 `yaml:"startBlock"`
}

type EndpointConfig struct {
	Url        string            `yaml:"url"`
	Name       string            `yaml:"name"`
	BlockRange uint64            `yaml:"blockRange"`
	Headers    map[string]string `yaml:"headers"`
	RateLimit  float64           `yaml:"rateLimit"`
	RateBurst  int               `yaml:"rateBurst"`
}

type DatabaseConfig struct {
	Engine      string                     `yaml:"engine" envconfig:"DATABASE_ENGINE"`
	Sqlite      *SqliteDatabaseConfig      `yaml:"sqlite"`
	Pgsql       *PgsqlDatabaseConfig       `yaml:"pgsql"`
	PgsqlWriter *PgsqlWriterDatabaseConfig `yaml:"pgsqlWriter"`
}

type SqliteDatabaseConfig struct {
	File         string `yaml:"file" envconfig:"DATABASE_SQLITE_FILE"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_SQLITE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_SQLITE_MAX_IDLE_CONNS"`
}

type PgsqlDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_MAX_IDLE_CONNS"`
}

type PgsqlWriterDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_WRITER_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_WRITER_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_WRITER_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_WRITER_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_WRITER_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_IDLE_CONNS"`
}
