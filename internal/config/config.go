package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Imagery  *imageryConfig
	S3       *s3Config
	Queue    *queueConfig
	Events   *eventsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"roads"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string   `envconfig:"ROAD_EXTRACTOR_ADDRESS" default:":8000"`
	MetricsAddress  string   `envconfig:"ROAD_EXTRACTOR_METRICS_ADDRESS" default:":8080"`
	LogLevel        string   `envconfig:"ROAD_EXTRACTOR_LOG_LEVEL" default:"info"`
	MigrationFolder string   `envconfig:"ROAD_EXTRACTOR_MIGRATIONS_FOLDER" default:""`
	CorsOrigins     []string `envconfig:"ROAD_EXTRACTOR_CORS_ORIGINS" default:"*"`
}

type imageryConfig struct {
	URL     string        `envconfig:"ROAD_EXTRACTOR_IMAGERY_URL" default:"https://api.openaerialmap.org"`
	Timeout time.Duration `envconfig:"ROAD_EXTRACTOR_IMAGERY_TIMEOUT" default:"30s"`
}

type s3Config struct {
	Endpoint   string        `envconfig:"ROAD_EXTRACTOR_S3_ENDPOINT" default:"localhost:9000"`
	Bucket     string        `envconfig:"ROAD_EXTRACTOR_S3_BUCKET" default:"roads"`
	AccessKey  string        `envconfig:"ROAD_EXTRACTOR_S3_ACCESS_KEY" default:""`
	SecretKey  string        `envconfig:"ROAD_EXTRACTOR_S3_SECRET_KEY" default:""`
	UseSSL     bool          `envconfig:"ROAD_EXTRACTOR_S3_USE_SSL" default:"false"`
	PresignTTL time.Duration `envconfig:"ROAD_EXTRACTOR_S3_PRESIGN_TTL" default:"1h"`
}

type queueConfig struct {
	Primary     StageConfig `envconfig:"PRIMARY"`
	Postprocess StageConfig `envconfig:"POSTPROCESS"`
	// DownloadTimeout bounds the mask and image downloads made by the workers.
	DownloadTimeout time.Duration `envconfig:"ROAD_EXTRACTOR_DOWNLOAD_TIMEOUT" default:"60s"`
}

type StageConfig struct {
	RedisAddress string        `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
	RedisDB      int           `envconfig:"REDIS_DB" default:"0"`
	QueueName    string        `envconfig:"QUEUE_NAME" default:""`
	MaxWorkers   int           `envconfig:"MAX_WORKERS" default:"2"`
	Retention    time.Duration `envconfig:"RETENTION" default:"1h"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"3"`
}

type eventsConfig struct {
	Brokers []string `envconfig:"ROAD_EXTRACTOR_KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"ROAD_EXTRACTOR_KAFKA_TOPIC" default:"road_extractor.events"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
		singleConfig.setStageDefaults()
	}
	return singleConfig, nil
}

// NewDefault returns a fresh config built only from defaults and the environment.
func NewDefault() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	c.setStageDefaults()
	return c, nil
}

func (c *Config) setStageDefaults() {
	if c.Queue.Primary.QueueName == "" {
		c.Queue.Primary.QueueName = "model_prediction"
	}
	if c.Queue.Postprocess.QueueName == "" {
		c.Queue.Postprocess.QueueName = "postprocessing_worker"
	}
}
